package observers

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func eventMatching(check func(AuthEvent) bool) interface{} {
	return mock.MatchedBy(func(data []byte) bool {
		var event AuthEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return false
		}
		return check(event)
	})
}

func TestNATSObserver_PublishesPhaseChange(t *testing.T) {
	pub := &mockPublisher{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pub.On("Publish", "birbcall.events.auth.phase", eventMatching(func(e AuthEvent) bool {
		return e.Type == EventAuthPhase &&
			e.From == "normal" &&
			e.To == "refreshing" &&
			e.Source == "worker-1" &&
			e.ID != "" &&
			e.Timestamp.Equal(fixed)
	})).Return(nil).Once()

	o := NewNATSObserver(pub, WithSource("worker-1"))
	o.now = func() time.Time { return fixed }
	o.OnAuthPhaseChange(sdk.AuthNormal, sdk.AuthRefreshing)

	pub.AssertExpectations(t)
}

func TestNATSObserver_PublishesReplay(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", "tenant.a.auth.replay", eventMatching(func(e AuthEvent) bool {
		return e.Type == EventReplay && e.Count == 5
	})).Return(nil).Once()

	o := NewNATSObserver(pub, WithSubjectPrefix("tenant.a"))
	assert.Equal(t, "tenant.a.auth.replay", o.Subject(EventReplay))
	o.OnReplay(5)

	pub.AssertExpectations(t)
}

func TestNATSObserver_IgnoresRequestEvents(t *testing.T) {
	pub := &mockPublisher{}
	o := NewNATSObserver(pub)

	o.OnRequestStart("GET", "u")
	o.OnRequestEnd("GET", "u", 200, time.Millisecond, nil)
	o.OnDuplicateSuppressed("GET", "u")
	o.OnUploadProgress("u", sdk.Progress{Percent: 100, Loaded: 1, Total: 1})

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestNATSObserver_PublishFailureIsLogged(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats: connection closed"))

	logger, hook := newTestLogger()
	o := NewNATSObserver(pub, WithEventLogger(logger))
	assert.NotPanics(t, func() { o.OnReplay(1) })

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "birbcall.events.auth.replay", entry.Data["subject"])
}

func TestNATSObserver_WithClient(t *testing.T) {
	pub := &mockPublisher{}
	var (
		mu       sync.Mutex
		subjects []string
	)
	pub.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		subjects = append(subjects, args.String(0))
	}).Return(nil)

	handled := runRefreshCycle(t, NewNATSObserver(pub))

	assert.Equal(t, int32(1), handled.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"birbcall.events.auth.phase",
		"birbcall.events.auth.replay",
		"birbcall.events.auth.phase",
	}, subjects)
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := ConnectNATS(NATSConfig{URL: "nats://127.0.0.1:1", Name: "test"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}
