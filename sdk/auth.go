package sdk

import (
	"context"
	"sync"
)

// AuthPhase is the state of token recovery.
type AuthPhase int

const (
	// AuthNormal means no refresh is underway.
	AuthNormal AuthPhase = iota
	// AuthRefreshing means the revalidation handler is running or its
	// replays are still pending. New 401s are parked for replay.
	AuthRefreshing
	// AuthExhausted means recovery gave up. It lasts until a new token is set.
	AuthExhausted
)

// String returns the phase name
func (p AuthPhase) String() string {
	switch p {
	case AuthRefreshing:
		return "refreshing"
	case AuthExhausted:
		return "exhausted"
	default:
		return "normal"
	}
}

// RetryResetPolicy decides whether a drained replay batch resets the retry
// count.
type RetryResetPolicy int

const (
	// ResetOnCleanBatch resets the retry count only when every replay in
	// the batch succeeded.
	ResetOnCleanBatch RetryResetPolicy = iota
	// ResetOnDrain resets the retry count whenever the batch drains,
	// whatever the replay outcomes were.
	ResetOnDrain
)

// RevalidationHandler obtains a fresh token after a 401. On success it must
// call c.SetBearerToken and then c.Recall; returning an error (or panicking)
// ends recovery with an ErrAuthExhausted error.
type RevalidationHandler func(ctx context.Context, c *Client, failed *Response) error

// AuthSnapshot is a point-in-time copy of the auth state.
type AuthSnapshot struct {
	Phase          AuthPhase
	Active         bool
	HasToken       bool
	RetryCount     int
	MaxRetries     int
	PendingReplays int
	CachedCalls    int
}

type unauthorizedAction int

const (
	// surface the 401 to the error handler
	actionSurface unauthorizedAction = iota
	// parked in the failed-call cache
	actionCaptured
	// this call started a refresh; run the revalidation handler
	actionRefresh
	// retry budget spent; deliver ErrAuthExhausted
	actionExhausted
)

// authMachine owns the bearer token, the retry counters and the failed-call
// cache. Every mutation goes through update, which holds the lock for the
// whole transition and reports phase changes once it is released.
type authMachine struct {
	mu sync.Mutex

	token          string
	hasToken       bool
	active         bool
	retryCount     int
	maxRetries     int
	refreshing     bool
	pendingReplays int
	batchFailed    bool
	exhausted      bool
	policy         RetryResetPolicy
	handler        RevalidationHandler
	cache          *failedCallCache
	fingerprint    Fingerprinter

	onPhase func(oldPhase, newPhase AuthPhase)
}

func newAuthMachine(maxRetries int, policy RetryResetPolicy, fp Fingerprinter, onPhase func(oldPhase, newPhase AuthPhase)) *authMachine {
	return &authMachine{
		maxRetries:  maxRetries,
		policy:      policy,
		cache:       newFailedCallCache(),
		fingerprint: fp,
		onPhase:     onPhase,
	}
}

func (a *authMachine) phaseLocked() AuthPhase {
	switch {
	case a.exhausted:
		return AuthExhausted
	case a.refreshing:
		return AuthRefreshing
	default:
		return AuthNormal
	}
}

func (a *authMachine) update(fn func()) {
	a.mu.Lock()
	oldPhase := a.phaseLocked()
	fn()
	newPhase := a.phaseLocked()
	a.mu.Unlock()

	if oldPhase != newPhase && a.onPhase != nil {
		a.onPhase(oldPhase, newPhase)
	}
}

func (a *authMachine) setToken(token string) {
	a.update(func() {
		a.token = token
		a.hasToken = true
		a.active = true
		a.exhausted = false
	})
}

func (a *authMachine) bearerToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, a.hasToken
}

func (a *authMachine) setHandler(handler RevalidationHandler) {
	a.update(func() {
		a.handler = handler
		if handler != nil {
			a.active = true
		}
	})
}

// authorization returns the Authorization header value, if auth is active.
// Before the first token is installed the value is "Bearer null".
func (a *authMachine) authorization() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return "", false
	}
	if !a.hasToken {
		return "Bearer null", true
	}
	return "Bearer " + a.token, true
}

// onUnauthorized decides what happens to a call that received a 401. When
// the result is actionRefresh the returned handler must be run exactly once.
func (a *authMachine) onUnauthorized(call CallParameters, isReplay bool) (unauthorizedAction, RevalidationHandler) {
	action := actionSurface
	var handler RevalidationHandler

	a.update(func() {
		switch {
		case a.refreshing:
			a.cache.add(callKey(a.fingerprint, call), call)
			action = actionCaptured
		case a.exhausted || a.handler == nil || isReplay:
			action = actionSurface
		case a.retryCount >= a.maxRetries:
			a.exhaustLocked()
			action = actionExhausted
		default:
			a.retryCount++
			a.refreshing = true
			a.batchFailed = false
			a.cache.add(callKey(a.fingerprint, call), call)
			handler = a.handler
			action = actionRefresh
		}
	})
	return action, handler
}

// onSuccess records a 2xx for a call that was not a replay.
func (a *authMachine) onSuccess() {
	a.update(func() {
		if !a.refreshing {
			a.retryCount = 0
		}
	})
}

// beginReplay swaps out the failed-call cache. An empty cache ends the
// refresh unless an earlier batch is still running; a second batch joins
// the running one.
func (a *authMachine) beginReplay() []CallParameters {
	var calls []CallParameters
	a.update(func() {
		calls = a.cache.drain()
		if len(calls) == 0 {
			// a batch still in flight ends the refresh when it drains
			if a.pendingReplays == 0 {
				a.refreshing = false
			}
			return
		}
		if a.pendingReplays == 0 {
			a.batchFailed = false
		}
		a.pendingReplays += len(calls)
	})
	return calls
}

// replayDone records the completion of one replay. Once the batch drains it
// returns the calls parked while it ran; they are not replayed.
func (a *authMachine) replayDone(ok bool) []CallParameters {
	var leftover []CallParameters
	a.update(func() {
		if a.pendingReplays == 0 {
			return
		}
		a.pendingReplays--
		if !ok {
			a.batchFailed = true
		}
		if a.pendingReplays > 0 {
			return
		}
		a.refreshing = false
		leftover = a.cache.drain()
		if a.policy == ResetOnDrain || !a.batchFailed {
			a.retryCount = 0
		}
	})
	return leftover
}

// abandonReplay ends a refresh whose replays will never be issued.
func (a *authMachine) abandonReplay() {
	a.update(func() {
		a.cache.clear()
		a.refreshing = false
		a.pendingReplays = 0
		a.batchFailed = false
	})
}

// exhaust ends recovery. It reports false if recovery had already been
// ended, so callers deliver ErrAuthExhausted only once.
func (a *authMachine) exhaust() bool {
	transitioned := false
	a.update(func() {
		if a.exhausted {
			return
		}
		a.exhaustLocked()
		transitioned = true
	})
	return transitioned
}

func (a *authMachine) exhaustLocked() {
	a.token = ""
	a.hasToken = false
	a.cache.clear()
	a.retryCount = 0
	a.pendingReplays = 0
	a.refreshing = false
	a.batchFailed = false
	a.exhausted = true
}

// reset discards the token and all recovery state and deactivates auth.
func (a *authMachine) reset() {
	a.update(func() {
		a.exhaustLocked()
		a.exhausted = false
		a.active = false
	})
}

func (a *authMachine) snapshot() AuthSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AuthSnapshot{
		Phase:          a.phaseLocked(),
		Active:         a.active,
		HasToken:       a.hasToken,
		RetryCount:     a.retryCount,
		MaxRetries:     a.maxRetries,
		PendingReplays: a.pendingReplays,
		CachedCalls:    a.cache.len(),
	}
}
