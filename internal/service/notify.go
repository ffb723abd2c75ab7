package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/LLManager/internal/adapter/ws"
	"github.com/Strob0t/LLManager/internal/port/broadcast"
	"github.com/Strob0t/LLManager/internal/port/notifier"
)

const maxNotifiedQuery = 500

// ReviewNotifier forwards review.pending and run.failed events to chat
// notifiers. Delivery is asynchronous and never fails the run.
type ReviewNotifier struct {
	notifiers []notifier.Notifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewReviewNotifier creates a notifier fan-out. timeout bounds one delivery
// round across all notifiers.
func NewReviewNotifier(notifiers []notifier.Notifier, timeout time.Duration) *ReviewNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReviewNotifier{notifiers: notifiers, timeout: timeout}
}

var _ broadcast.Broadcaster = (*ReviewNotifier)(nil)

// BroadcastEvent implements broadcast.Broadcaster.
func (r *ReviewNotifier) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	if len(r.notifiers) == 0 {
		return
	}
	n, ok := notificationFor(eventType, payload)
	if !ok {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		var g errgroup.Group
		for _, nt := range r.notifiers {
			g.Go(func() error {
				if err := nt.Send(sctx, n); err != nil {
					slog.WarnContext(sctx, "review notification failed", "notifier", nt.Name(), "event", n.Event, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Wait blocks until in-flight deliveries are done.
func (r *ReviewNotifier) Wait() {
	r.wg.Wait()
}

func notificationFor(eventType string, payload any) (notifier.Notification, bool) {
	switch ev := payload.(type) {
	case ws.ReviewPendingEvent:
		if eventType != broadcast.EventReviewPending {
			return notifier.Notification{}, false
		}
		n := notifier.Notification{
			Event:    eventType,
			TenantID: ev.TenantID,
			RunID:    ev.RunID,
			Title:    "Review needed",
			Level:    notifier.LevelInfo,
		}
		var b strings.Builder
		fmt.Fprintf(&b, "*Request:* %s", clip(ev.Query, maxNotifiedQuery))
		if ev.Interrupt != nil {
			n.Title = "Review needed: " + string(ev.Interrupt.Args.Status)
			fmt.Fprintf(&b, "\n*Proposed:* %s\n*Explanation:* %s", ev.Interrupt.Args.Status, ev.Interrupt.Args.Explanation)
		}
		n.Message = b.String()
		return n, true
	case ws.RunFinishedEvent:
		if eventType != broadcast.EventRunFailed {
			return notifier.Notification{}, false
		}
		return notifier.Notification{
			Event:    eventType,
			TenantID: ev.TenantID,
			RunID:    ev.RunID,
			Title:    "Decision run failed",
			Message:  ev.Error,
			Level:    notifier.LevelError,
		}, true
	default:
		return notifier.Notification{}, false
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
