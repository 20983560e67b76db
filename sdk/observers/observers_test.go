package observers

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/birbparty/birb-call/internal/mockapi"
	"github.com/birbparty/birb-call/sdk"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// refreshingServer accepts only the "fresh" token on GET /items/.
func refreshingServer(t *testing.T) *mockapi.Server {
	t.Helper()
	server := mockapi.New()
	t.Cleanup(server.Close)
	server.WithBearer("GET /items/", func(token string) bool {
		return token == "fresh"
	}, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{"id": strings.TrimPrefix(r.URL.Path, "/items/")}
	})
	return server
}

// runRefreshCycle issues one call with a stale token so the client goes
// through a full refresh and replay with observer attached.
func runRefreshCycle(t *testing.T, observer sdk.Observer) *atomic.Int32 {
	t.Helper()
	server := refreshingServer(t)

	logger, _ := test.NewNullLogger()
	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL(server.URL).
		WithSettleDelay(10 * time.Millisecond).
		WithLogger(logger).
		WithObserver(observer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var handled atomic.Int32
	client.Define("/items/{id}", func(resp *sdk.Response) { handled.Add(1) })
	client.SetBearerToken("stale")
	client.SetRevalidationHandler(func(ctx context.Context, c *sdk.Client, failed *sdk.Response) error {
		c.SetBearerToken("fresh")
		c.Recall()
		return nil
	})

	launched, err := client.Call(context.Background(), "/items/{id}", sdk.GET, sdk.WithPathVariable("id", "7"))
	require.NoError(t, err)
	require.True(t, launched)
	client.Wait()
	return &handled
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
