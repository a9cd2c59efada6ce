package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
	hold chan struct{}
}

func (s *stubSender) Send(ctx context.Context, template, to string, _ map[string]interface{}) error {
	if s.hold != nil {
		select {
		case <-s.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := s.fail[template]; err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, template+"->"+to)
	s.mu.Unlock()
	return nil
}

func TestDispatch_RunsFollowUpOnSuccessOnly(t *testing.T) {
	sender := &stubSender{fail: map[string]error{"broken": errors.New("smtp down")}}
	d := NewDispatcher(sender, "admin@site.example", time.Second)

	var okCalls, failCalls int32
	d.Dispatch(
		Task{Template: "welcome", To: "a@b.co", OnSent: func(context.Context, time.Time) error {
			atomic.AddInt32(&okCalls, 1)
			return nil
		}},
		Task{Template: "broken", To: "a@b.co", OnSent: func(context.Context, time.Time) error {
			atomic.AddInt32(&failCalls, 1)
			return nil
		}},
		Task{Template: "admin_note", ToAdmin: true},
	)
	d.Wait()

	assert.Equal(t, int32(1), okCalls)
	assert.Equal(t, int32(0), failCalls)
	assert.ElementsMatch(t, []string{"welcome->a@b.co", "admin_note->admin@site.example"}, sender.sent)
}

func TestDispatch_DoesNotBlockCaller(t *testing.T) {
	sender := &stubSender{hold: make(chan struct{})}
	d := NewDispatcher(sender, "", time.Second)

	start := time.Now()
	d.Dispatch(Task{Template: "slow", To: "a@b.co"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(sender.hold)
	d.Wait()
	assert.Len(t, sender.sent, 1)
}

func TestDispatch_SkipsAdminTaskWithoutAdminAddress(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, "", time.Second)
	d.Dispatch(Task{Template: "admin_note", ToAdmin: true})
	d.Wait()
	assert.Empty(t, sender.sent)
}

func TestDispatch_FollowUpErrorIsSwallowed(t *testing.T) {
	d := NewDispatcher(&stubSender{}, "", time.Second)
	d.Dispatch(Task{Template: "x", To: "a@b.co", OnSent: func(context.Context, time.Time) error {
		return errors.New("db gone")
	}})
	d.Wait()
}

func TestShutdown_TimesOut(t *testing.T) {
	sender := &stubSender{hold: make(chan struct{})}
	d := NewDispatcher(sender, "", time.Minute)
	d.Dispatch(Task{Template: "stuck", To: "a@b.co"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	close(sender.hold)
	require.NoError(t, d.Shutdown(context.Background()))
}
