package sdk

// failedCallCache keeps calls that got a 401 while a refresh was underway,
// in arrival order and without duplicates. It is not safe for concurrent
// use; authMachine guards it.
type failedCallCache struct {
	calls []CallParameters
	seen  map[uint64]struct{}
}

func newFailedCallCache() *failedCallCache {
	return &failedCallCache{seen: make(map[uint64]struct{})}
}

// add stores a snapshot of call unless an equivalent call is already held.
func (c *failedCallCache) add(key uint64, call CallParameters) bool {
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.calls = append(c.calls, call.Clone())
	return true
}

// drain empties the cache and returns what it held.
func (c *failedCallCache) drain() []CallParameters {
	calls := c.calls
	c.clear()
	return calls
}

func (c *failedCallCache) clear() {
	c.calls = nil
	c.seen = make(map[uint64]struct{})
}

func (c *failedCallCache) len() int {
	return len(c.calls)
}
