package cli

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/birbparty/birb-call/internal/config"
	"github.com/birbparty/birb-call/sdk"
	"github.com/birbparty/birb-call/sdk/observers"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// errorCollector gathers errors delivered by the client so a command can
// report them after Wait.
type errorCollector struct {
	mu   sync.Mutex
	errs []error
}

func (e *errorCollector) add(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *errorCollector) all() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

// session is a configured client plus the resources it holds.
type session struct {
	client *sdk.Client
	errors *errorCollector
	nc     *nats.Conn
}

func newSession(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*session, error) {
	s := &session{errors: &errorCollector{}}

	obs := []sdk.Observer{observers.NewLogObserver(logger)}
	if cfg.Events.NATSURL != "" {
		nc, err := observers.ConnectNATS(observers.NATSConfig{
			URL:  cfg.Events.NATSURL,
			Name: "birbcall-cli",
		}, logger)
		if err != nil {
			return nil, err
		}
		s.nc = nc
		obs = append(obs, observers.NewNATSObserver(nc,
			observers.WithSubjectPrefix(cfg.Events.SubjectPrefix),
			observers.WithSource("birbcall-cli"),
			observers.WithEventLogger(logger),
		))
	}

	sc := cfg.SDKConfig().
		WithLogger(logger).
		WithErrorHandler(s.errors.add).
		WithObserver(sdk.NewCompositeObserver(obs...)).
		WithHTTPClient(&http.Client{Transport: observers.NewTracingTransport(nil, nil)})

	client, err := sdk.NewClient(sc)
	if err != nil {
		s.close()
		return nil, err
	}
	s.client = client

	for _, ep := range cfg.Endpoints {
		verb, err := sdk.ParseVerb(ep.Verb)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("endpoint %s: %w", ep.Route, err)
		}
		client.Define(ep.Route, nil, verb)
	}

	if cfg.Auth.Token != "" {
		client.SetBearerToken(cfg.Auth.Token)
	}
	if cfg.Auth.CanRefresh() {
		oc := &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.Auth.TokenURL},
		}
		client.SetRevalidationHandler(sdk.OAuth2Revalidator(
			sdk.RefreshTokenSource(ctx, oc, cfg.Auth.RefreshToken),
		))
	}

	return s, nil
}

// finish waits for outstanding work and returns the first delivered error.
func (s *session) finish() error {
	s.client.Wait()
	errs := s.errors.all()
	if len(errs) == 0 {
		return nil
	}
	if len(errs) > 1 {
		return fmt.Errorf("%w (and %d more errors)", errs[0], len(errs)-1)
	}
	return errs[0]
}

func (s *session) close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
