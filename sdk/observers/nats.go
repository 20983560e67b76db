package observers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubjectPrefix is prepended to every event subject.
const DefaultSubjectPrefix = "birbcall.events"

// EventType identifies the kind of auth event.
type EventType string

const (
	// EventAuthPhase is published on every auth phase transition
	EventAuthPhase EventType = "auth.phase"
	// EventReplay is published when a batch of parked calls is reissued
	EventReplay EventType = "auth.replay"
)

// AuthEvent is the JSON document published for each event.
type AuthEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Publisher is the part of *nats.Conn the observer needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSObserver publishes auth phase changes and replay batches so that
// other processes sharing a token can follow recovery. Request-level events
// are ignored.
type NATSObserver struct {
	sdk.NoopObserver

	publisher Publisher
	prefix    string
	source    string
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NATSObserverOption configures a NATSObserver.
type NATSObserverOption func(*NATSObserver)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) NATSObserverOption {
	return func(o *NATSObserver) { o.prefix = prefix }
}

// WithSource tags every event with the name of the publishing client.
func WithSource(source string) NATSObserverOption {
	return func(o *NATSObserver) { o.source = source }
}

// WithEventLogger sets the logger used for publish failures.
func WithEventLogger(logger logrus.FieldLogger) NATSObserverOption {
	return func(o *NATSObserver) { o.logger = logger }
}

// NewNATSObserver returns an observer publishing through p.
func NewNATSObserver(p Publisher, opts ...NATSObserverOption) *NATSObserver {
	o := &NATSObserver{
		publisher: p,
		prefix:    DefaultSubjectPrefix,
		logger:    logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Subject returns the subject events of type t are published on.
func (o *NATSObserver) Subject(t EventType) string {
	return o.prefix + "." + string(t)
}

// OnAuthPhaseChange publishes an EventAuthPhase event.
func (o *NATSObserver) OnAuthPhaseChange(oldPhase, newPhase sdk.AuthPhase) {
	o.publish(AuthEvent{
		Type: EventAuthPhase,
		From: oldPhase.String(),
		To:   newPhase.String(),
	})
}

// OnReplay publishes an EventReplay event.
func (o *NATSObserver) OnReplay(count int) {
	o.publish(AuthEvent{Type: EventReplay, Count: count})
}

func (o *NATSObserver) publish(event AuthEvent) {
	event.ID = uuid.New().String()
	event.Source = o.source
	event.Timestamp = o.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		o.logger.WithError(err).Error("failed to marshal auth event")
		return
	}

	subject := o.Subject(event.Type)
	if err := o.publisher.Publish(subject, data); err != nil {
		o.logger.WithError(err).WithField("subject", subject).Warn("failed to publish auth event")
	}
}

// NATSConfig holds connection settings for ConnectNATS.
type NATSConfig struct {
	URL      string
	Name     string
	User     string
	Password string
}

// ConnectNATS opens a connection that reconnects indefinitely and logs
// connection state changes.
func ConnectNATS(cfg NATSConfig, logger logrus.FieldLogger) (*nats.Conn, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
	}

	if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}
