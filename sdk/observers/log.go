package observers

import (
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/sirupsen/logrus"
)

// LogObserver writes client events to a logrus logger. Request traffic is
// logged at debug level, auth transitions at info and exhaustion at warn.
type LogObserver struct {
	logger logrus.FieldLogger
}

// NewLogObserver returns a LogObserver. A nil logger selects the standard
// logger.
func NewLogObserver(logger logrus.FieldLogger) *LogObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogObserver{logger: logger.WithField("component", "birbcall")}
}

// OnRequestStart logs the launch.
func (l *LogObserver) OnRequestStart(method, url string) {
	l.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("request started")
}

// OnRequestEnd logs the result.
func (l *LogObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	entry := l.logger.WithFields(logrus.Fields{
		"method":      method,
		"url":         url,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
		"outcome":     outcome(err),
	})
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return
	}
	entry.Debug("request completed")
}

// OnDuplicateSuppressed logs the dropped call.
func (l *LogObserver) OnDuplicateSuppressed(method, url string) {
	l.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("duplicate request suppressed")
}

// OnUploadProgress logs once per upload, when the body has been sent.
func (l *LogObserver) OnUploadProgress(url string, progress sdk.Progress) {
	if progress.Total == 0 || progress.Loaded < progress.Total {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"url":   url,
		"bytes": progress.Total,
	}).Debug("upload sent")
}

// OnAuthPhaseChange logs the transition.
func (l *LogObserver) OnAuthPhaseChange(oldPhase, newPhase sdk.AuthPhase) {
	entry := l.logger.WithFields(logrus.Fields{
		"from": oldPhase.String(),
		"to":   newPhase.String(),
	})
	if newPhase == sdk.AuthExhausted {
		entry.Warn("auth recovery exhausted")
		return
	}
	entry.Info("auth phase changed")
}

// OnReplay logs the batch size.
func (l *LogObserver) OnReplay(count int) {
	l.logger.WithField("count", count).Info("replaying failed calls")
}
