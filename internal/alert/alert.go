// Package alert implements the cooldown-gated operator notification path
// (spec §4.7). It contains no delivery transport of its own — that is
// injected as a Notifier, typically the Telegram bot's chat sender — so
// that a not-yet-configured bot degrades to a logged no-op rather than an
// error.
package alert

import (
	"time"

	"github.com/beaconlb/beacon/internal/logging"
	"github.com/beaconlb/beacon/internal/store"
)

// Notifier delivers a single message to the operator's notification
// channel. Delivery failure is the caller's concern to swallow, per spec
// §4.7 "best-effort".
type Notifier interface {
	Notify(message string) error
}

// NoopNotifier is used when no Telegram bot token is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string) error { return nil }

// Alerter gates delivery behind ALERT_COOLDOWN (spec §6, default 300s).
type Alerter struct {
	store    *store.Store
	notifier Notifier
	log      *logging.Logger
	cooldown time.Duration
}

func New(st *store.Store, notifier Notifier, log *logging.Logger, cooldown time.Duration) *Alerter {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Alerter{store: st, notifier: notifier, log: log, cooldown: cooldown}
}

// Alert drops the message silently (but logged) if still within the
// cooldown window; otherwise it updates the cooldown timestamp, logs a
// warning, and attempts delivery. Delivery failure is swallowed.
func (a *Alerter) Alert(message string, now time.Time) error {
	last, err := a.store.GetLastAlertEpoch()
	if err != nil {
		return err
	}

	if last != 0 && now.Sub(time.Unix(last, 0)) < a.cooldown {
		a.log.Info("alert suppressed by cooldown: %s", message)
		return nil
	}

	if err := a.store.SetLastAlertEpoch(now.Unix()); err != nil {
		return err
	}
	a.log.Warn("%s", message)

	if err := a.notifier.Notify(message); err != nil {
		a.log.Warn("alert delivery failed: %v", err)
	}
	return nil
}
