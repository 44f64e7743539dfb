// README: Dispatcher renders a notification and delivers it over push and the foreground hub.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ridepool/internal/logging"
	"ridepool/internal/metrics"
	"ridepool/internal/types"
)

const fanoutConcurrency = 8

type Pusher interface {
	Send(ctx context.Context, uid types.ID, n Notification) error
}

type Publisher interface {
	Publish(ctx context.Context, uid types.ID, n Notification) error
}

type Dispatcher struct {
	push Pusher
	hub  Publisher
	loc  *time.Location
	now  func() time.Time
}

// NewDispatcher returns a Dispatcher; either channel may be nil.
func NewDispatcher(push Pusher, hub Publisher, loc *time.Location) *Dispatcher {
	return &Dispatcher{push: push, hub: hub, loc: loc, now: time.Now}
}

// Notify delivers to uid on every channel. It returns an error only when no
// channel accepted the notification.
func (d *Dispatcher) Notify(ctx context.Context, uid types.ID, kind Kind, p Payload) error {
	if uid == "" {
		return fmt.Errorf("notify %s: missing recipient", kind)
	}
	n, err := Render(kind, p, d.loc)
	if err != nil {
		return err
	}
	n.SentAt = d.now()

	var errs []error
	delivered := 0
	if d.push != nil {
		if err := d.push.Send(ctx, uid, n); err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
			record(kind, "push", err)
		} else {
			delivered++
			record(kind, "push", nil)
		}
	}
	if d.hub != nil {
		if err := d.hub.Publish(ctx, uid, n); err != nil {
			errs = append(errs, fmt.Errorf("foreground: %w", err))
			record(kind, "foreground", err)
		} else {
			delivered++
			record(kind, "foreground", nil)
		}
	}
	if delivered == 0 && len(errs) > 0 {
		return fmt.Errorf("notify %s to %s: %w", kind, uid, errors.Join(errs...))
	}
	if len(errs) > 0 {
		logging.Ctx(ctx).Debug().Err(errors.Join(errs...)).Str("uid", string(uid)).Str("kind", string(kind)).Msg("partial notification delivery")
	}
	return nil
}

// NotifyMany sends the same notification to every recipient concurrently and
// joins the failures.
func (d *Dispatcher) NotifyMany(ctx context.Context, uids []types.ID, kind Kind, p Payload) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for _, uid := range uids {
		g.Go(func() error {
			if err := d.Notify(gctx, uid, kind, p); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func record(kind Kind, channel string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrNoDevices):
		outcome = metrics.OutcomeSkipped
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.NotificationsTotal.WithLabelValues(string(kind), channel, outcome).Inc()
}
