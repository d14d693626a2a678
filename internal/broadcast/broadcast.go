// Package broadcast fans per-tick price snapshots out to subscribers.
// Publishers never block the caller for longer than their own timeout, so a
// stalled subscriber cannot hold up a session's clock.
package broadcast

import (
	"context"
	"errors"
)

// Publisher delivers a payload to every subscriber of topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Topic returns the market-update topic of a session.
func Topic(sessionID string) string {
	return "session:" + sessionID + ":market"
}

// Multi publishes to several sinks. Every sink is attempted; failures are
// joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
