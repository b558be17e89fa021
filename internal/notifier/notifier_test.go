package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/datalens-dev/datalens/internal/models"
)

// fakeNotifier records sends and returns a configurable error.
type fakeNotifier struct {
	name  string
	calls int
	err   error
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, msg *Message) error {
	f.calls++
	return f.err
}

func (f *fakeNotifier) Close() error { return nil }

func testMessage() *Message {
	return &Message{
		AlertName: "weekly revenue drop",
		Subject:   "Alert triggered: weekly revenue drop",
		Body:      "revenue is 95000.00, below threshold 100000.00",
	}
}

func TestSendEmailChannel(t *testing.T) {
	d := NewDispatcher()
	email := &fakeNotifier{name: TransportEmail}
	chat := &fakeNotifier{name: TransportChat}
	d.Register(email)
	d.Register(chat)

	if !d.Send(context.Background(), models.ChannelEmail, testMessage()) {
		t.Error("expected send to succeed")
	}
	if email.calls != 1 {
		t.Errorf("email calls = %d, want 1", email.calls)
	}
	if chat.calls != 0 {
		t.Errorf("chat calls = %d, want 0", chat.calls)
	}
}

func TestSendBothChannelsIndependently(t *testing.T) {
	d := NewDispatcher()
	email := &fakeNotifier{name: TransportEmail}
	chat := &fakeNotifier{name: TransportChat}
	d.Register(email)
	d.Register(chat)

	if !d.Send(context.Background(), models.ChannelBoth, testMessage()) {
		t.Error("expected send to succeed")
	}
	if email.calls != 1 || chat.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", email.calls, chat.calls)
	}
}

func TestSendPartialFailureStillSent(t *testing.T) {
	d := NewDispatcher()
	email := &fakeNotifier{name: TransportEmail, err: errors.New("smtp down")}
	chat := &fakeNotifier{name: TransportChat}
	d.Register(email)
	d.Register(chat)

	// One transport failing must not hide the other's success.
	if !d.Send(context.Background(), models.ChannelBoth, testMessage()) {
		t.Error("expected sent=true when one transport succeeds")
	}
	if email.calls != 1 || chat.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", email.calls, chat.calls)
	}
}

func TestSendAllTransportsFail(t *testing.T) {
	d := NewDispatcher()
	d.Register(&fakeNotifier{name: TransportEmail, err: errors.New("smtp down")})
	d.Register(&fakeNotifier{name: TransportChat, err: errors.New("webhook down")})

	if d.Send(context.Background(), models.ChannelBoth, testMessage()) {
		t.Error("expected sent=false when every transport fails")
	}
}

func TestSendUnconfiguredTransportIsFailureNotPanic(t *testing.T) {
	d := NewDispatcher()
	chat := &fakeNotifier{name: TransportChat}
	d.Register(chat)

	// Email transport missing, chat registered.
	if d.Send(context.Background(), models.ChannelEmail, testMessage()) {
		t.Error("expected sent=false for unconfigured transport")
	}
	if !d.Send(context.Background(), models.ChannelBoth, testMessage()) {
		t.Error("expected sent=true via the configured transport")
	}
	if chat.calls != 1 {
		t.Errorf("chat calls = %d, want 1", chat.calls)
	}
}

func TestSendRateLimited(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{
		MaxPerWindow: 2,
		Enabled:      true,
	})
	email := &fakeNotifier{name: TransportEmail}
	d.Register(email)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if !d.Send(ctx, models.ChannelEmail, testMessage()) {
			t.Fatalf("send %d unexpectedly blocked", i)
		}
	}

	if d.Send(ctx, models.ChannelEmail, testMessage()) {
		t.Error("expected third send to be rate limited")
	}
	if email.calls != 2 {
		t.Errorf("email calls = %d, want 2", email.calls)
	}
	if got := d.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestSendRefundsTokenOnTotalFailure(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{
		MaxPerWindow: 1,
		Enabled:      true,
	})
	email := &fakeNotifier{name: TransportEmail, err: errors.New("smtp down")}
	d.Register(email)

	ctx := context.Background()
	d.Send(ctx, models.ChannelEmail, testMessage())

	// The failed attempt refunded its token, so a retry is not blocked.
	email.err = nil
	if !d.Send(ctx, models.ChannelEmail, testMessage()) {
		t.Error("expected retry to succeed after failed send refunded its token")
	}
}

func TestUnregister(t *testing.T) {
	d := NewDispatcher()
	d.Register(&fakeNotifier{name: TransportEmail})
	d.Unregister(TransportEmail)

	if _, ok := d.Get(TransportEmail); ok {
		t.Error("expected transport to be removed")
	}
}
