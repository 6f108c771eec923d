package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
)

type fakeStream struct {
	results      chan *ws.LogResult
	unsubscribed bool
}

func (s *fakeStream) Recv(ctx context.Context) (*ws.LogResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-s.results:
		if !ok {
			return nil, errors.New("websocket: close 1006 (abnormal closure)")
		}
		return r, nil
	}
}

func (s *fakeStream) Unsubscribe() { s.unsubscribed = true }

// fakeSubscriber hands out streams in order. A leading error is
// returned on the first call only.
type fakeSubscriber struct {
	err     error
	streams []*fakeStream
	calls   int
}

func (f *fakeSubscriber) SubscribeLogs(ctx context.Context) (ledger.LogStream, error) {
	f.calls++
	if f.calls == 1 && f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if f.err != nil {
		idx--
	}
	if idx >= len(f.streams) {
		return nil, errors.New("no stream available")
	}
	return f.streams[idx], nil
}

func logResult(slot uint64, sig byte, txErr any, logs ...string) *ws.LogResult {
	r := &ws.LogResult{}
	r.Context.Slot = slot
	r.Value.Signature = testSig(sig)
	r.Value.Err = txErr
	r.Value.Logs = logs
	return r
}

func dealCreatedLogs(t *testing.T, program byte) []string {
	t.Helper()
	p := testKey(program)
	return []string{
		fmt.Sprintf("Program %s invoke [1]", p.String()),
		eventLogLine(t, &domain.DealCreated{Deal: testKey(2), ExpiresAt: 100, CreatedAt: 50}),
		fmt.Sprintf("Program %s success", p.String()),
	}
}

func TestLiveAdapter_DispatchesDecodedEvents(t *testing.T) {
	program := testKey(1)
	stream := &fakeStream{results: make(chan *ws.LogResult, 3)}
	adapter := NewLiveAdapter(&fakeSubscriber{streams: []*fakeStream{stream}}, program, discardLogger())

	eventLogs := dealCreatedLogs(t, 1)
	stream.results <- logResult(10, 1, map[string]any{"err": 1}, eventLogs...) // failed tx, skipped
	stream.results <- logResult(20, 2, nil, eventLogs...)

	got := make(chan domain.EventWithContext, 1)
	cb := func(ctx context.Context, batch []domain.EventWithContext) error {
		for _, ev := range batch {
			got <- ev
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adapter.Start(ctx, cb) }()

	select {
	case ev := <-got:
		if ev.Name != domain.EventDealCreated {
			t.Errorf("event name = %q, want %q", ev.Name, domain.EventDealCreated)
		}
		if ev.Context.Slot != 20 {
			t.Errorf("slot = %d, want 20 (failed tx must be skipped)", ev.Context.Slot)
		}
		if ev.Context.BlockTime != nil {
			t.Errorf("live events must not carry a block time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	if err := adapter.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if !stream.unsubscribed {
		t.Error("Stop did not release the subscription")
	}
}

func TestLiveAdapter_InitialSubscribeFailure(t *testing.T) {
	subErr := errors.New("connection refused")
	adapter := NewLiveAdapter(&fakeSubscriber{err: subErr}, testKey(1), discardLogger())

	err := adapter.Start(context.Background(), func(ctx context.Context, batch []domain.EventWithContext) error { return nil })
	if !errors.Is(err, subErr) {
		t.Errorf("Start error = %v, want %v", err, subErr)
	}
}

// A dropped stream must not end Start: the adapter reopens the
// subscription and keeps dispatching.
func TestLiveAdapter_ResubscribesAfterStreamFailure(t *testing.T) {
	program := testKey(1)
	eventLogs := dealCreatedLogs(t, 1)

	first := &fakeStream{results: make(chan *ws.LogResult, 2)}
	second := &fakeStream{results: make(chan *ws.LogResult, 2)}
	first.results <- logResult(10, 1, nil, eventLogs...)
	close(first.results) // next Recv fails like a dropped websocket
	second.results <- logResult(20, 2, nil, eventLogs...)

	adapter := NewLiveAdapter(&fakeSubscriber{streams: []*fakeStream{first, second}}, program, discardLogger())
	adapter.backoffMin = time.Millisecond
	adapter.backoffMax = 2 * time.Millisecond

	slots := make(chan uint64, 2)
	cb := func(ctx context.Context, batch []domain.EventWithContext) error {
		slots <- batch[0].Context.Slot
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adapter.Start(ctx, cb) }()

	for _, want := range []uint64{10, 20} {
		select {
		case slot := <-slots:
			if slot != want {
				t.Errorf("slot = %d, want %d", slot, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no event for slot %d; stream was not reopened", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v, want nil (stream failure is not fatal)", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !first.unsubscribed {
		t.Error("broken stream was not released before resubscribing")
	}
}

// Retry failures during resubscribe back off and keep trying; only
// cancellation ends the loop, and it ends it cleanly.
func TestLiveAdapter_ResubscribeStopsOnCancel(t *testing.T) {
	program := testKey(1)
	first := &fakeStream{results: make(chan *ws.LogResult)}
	close(first.results)

	// No replacement stream: every reopen attempt fails.
	adapter := NewLiveAdapter(&fakeSubscriber{streams: []*fakeStream{first}}, program, discardLogger())
	adapter.backoffMin = time.Millisecond
	adapter.backoffMax = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- adapter.Start(ctx, func(ctx context.Context, batch []domain.EventWithContext) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel during resubscribe")
	}
}

func TestLiveAdapter_HandlerErrorDoesNotStopStream(t *testing.T) {
	program := testKey(1)
	stream := &fakeStream{results: make(chan *ws.LogResult, 2)}
	adapter := NewLiveAdapter(&fakeSubscriber{streams: []*fakeStream{stream}}, program, discardLogger())

	eventLogs := dealCreatedLogs(t, 1)
	stream.results <- logResult(10, 1, nil, eventLogs...)
	stream.results <- logResult(20, 2, nil, eventLogs...)

	slots := make(chan uint64, 2)
	cb := func(ctx context.Context, batch []domain.EventWithContext) error {
		slots <- batch[0].Context.Slot
		if batch[0].Context.Slot == 10 {
			return errors.New("transient storage failure")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapter.Start(ctx, cb)

	for _, want := range []uint64{10, 20} {
		select {
		case slot := <-slots:
			if slot != want {
				t.Errorf("slot = %d, want %d", slot, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream stalled waiting for slot %d", want)
		}
	}
}
