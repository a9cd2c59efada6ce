// Package notify sends transactional email after a primary write has been
// committed. Each task runs detached from the request, under its own
// timeout, and its failure is logged rather than returned: a submission is
// never failed or delayed because mail could not go out.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/pkg/logger"
)

// Sender renders and delivers a named template.
type Sender interface {
	Send(ctx context.Context, template, to string, vars map[string]interface{}) error
}

// Task is one email plus the follow-up write recording that it went out.
type Task struct {
	Template string
	// To is the recipient. Ignored when ToAdmin is set.
	To      string
	ToAdmin bool
	Vars    map[string]interface{}
	// OnSent runs after a successful send, typically setting an
	// emailSent flag and timestamp on the originating record.
	OnSent func(ctx context.Context, sentAt time.Time) error
}

// DefaultTimeout bounds one task, send and follow-up included.
const DefaultTimeout = 30 * time.Second

// Dispatcher runs notification tasks in the background.
type Dispatcher struct {
	sender     Sender
	adminEmail string
	timeout    time.Duration
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher. adminEmail receives ToAdmin tasks; when
// empty those tasks are skipped.
func NewDispatcher(sender Sender, adminEmail string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sender: sender, adminEmail: adminEmail, timeout: timeout, now: time.Now}
}

// Dispatch starts every task and returns immediately.
func (d *Dispatcher) Dispatch(tasks ...Task) {
	for _, t := range tasks {
		to := t.To
		if t.ToAdmin {
			to = d.adminEmail
		}
		if to == "" {
			logger.Debug("notify: no recipient, skipping", "template", t.Template)
			continue
		}
		d.wg.Add(1)
		metrics.NotificationStarted()
		go d.run(t, to)
	}
}

func (d *Dispatcher) run(t Task, to string) {
	defer d.wg.Done()
	defer metrics.NotificationFinished()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notify: task panicked", "template", t.Template, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, t.Template, to, t.Vars); err != nil {
		metrics.Notification(t.Template, metrics.OutcomeFailed)
		logger.Warn("notify: send failed", "template", t.Template, "recipient", to, "error", err)
		return
	}
	metrics.Notification(t.Template, metrics.OutcomeOK)

	if t.OnSent == nil {
		return
	}
	if err := t.OnSent(ctx, d.now().UTC()); err != nil {
		logger.Warn("notify: follow-up update failed", "template", t.Template, "recipient", to, "error", err)
	}
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Shutdown waits for in-flight tasks or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
