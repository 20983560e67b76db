package sdk

import (
	"sync"
	"testing"
	"time"

	"github.com/birbparty/birb-call/internal/mockapi"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// errorSink collects everything the client hands to its error handler.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func newMockServer(t *testing.T) *mockapi.Server {
	t.Helper()
	server := mockapi.New()
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string, configure ...func(*Config)) (*Client, *errorSink, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := &errorSink{}

	config := DefaultConfig().
		WithBaseURL(baseURL).
		WithSettleDelay(10 * time.Millisecond).
		WithLogger(logger).
		WithErrorHandler(sink.handle)
	for _, fn := range configure {
		fn(config)
	}

	client, err := NewClient(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, sink, hook
}
