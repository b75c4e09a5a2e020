// Package notifier delivers rendered reports.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/report"
)

// Notifier delivers a rendered message.
type Notifier interface {
	Send(ctx context.Context, msg *report.Message) error
	Name() string
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, msg *report.Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			log.Error().Str("notifier", n.Name()).Str("subject", msg.Subject).Err(err).Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		log.Info().Str("notifier", n.Name()).Str("subject", msg.Subject).Msg("notification sent")
	}
	return errors.Join(errs...)
}

// alertsOnly drops messages that carry no alert.
type alertsOnly struct {
	Notifier
}

// AlertsOnly wraps n so it only receives messages with Alert set.
func AlertsOnly(n Notifier) Notifier {
	return alertsOnly{n}
}

func (a alertsOnly) Send(ctx context.Context, msg *report.Message) error {
	if !msg.Alert {
		log.Debug().Str("notifier", a.Name()).Str("subject", msg.Subject).Msg("no alert, skipped")
		return nil
	}
	return a.Notifier.Send(ctx, msg)
}
