package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
)

type fakeBalanceReader struct {
	balance float64
	err     error
}

func (f *fakeBalanceReader) FetchBalance(ctx context.Context, ccy models.Currency) (float64, error) {
	return f.balance, f.err
}

type fakeExecutor struct {
	calls  chan models.SwapPlan
	result models.SwapResult
}

func (f *fakeExecutor) Execute(ctx context.Context, plan models.SwapPlan) (models.SwapResult, error) {
	f.calls <- plan
	return f.result, nil
}

func newTestDispatcher(cfg config.DispatcherConfig, reader *fakeBalanceReader, exec *fakeExecutor) *Dispatcher {
	d := &Dispatcher{
		Adapters: map[string]BalanceReader{"v": reader},
		Exec:     exec,
		Cfg:      cfg,
		sems:     make(map[string]chan struct{}),
		paused:   make(map[string]bool),
	}
	d.start()
	return d
}

func testOpp() models.Opportunity {
	return models.Opportunity{
		Venue: "v",
		Cycle: models.Cycle{Venue: "v", Nodes: []models.Currency{"USDT", "BTC", "ETH", "USDT"}},
	}
}

func waitPlan(t *testing.T, calls chan models.SwapPlan) models.SwapPlan {
	t.Helper()
	select {
	case p := <-calls:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatcher to execute a plan")
		return models.SwapPlan{}
	}
}

func TestSubmitSkipsBelowMinAmount(t *testing.T) {
	cfg := config.DispatcherConfig{MaxWorkers: 2, PerExchangeConcurrency: 1, DefaultMinAmount: 10}
	reader := &fakeBalanceReader{balance: 1}
	exec := &fakeExecutor{calls: make(chan models.SwapPlan, 1), result: models.SwapResult{OK: true}}
	d := newTestDispatcher(cfg, reader, exec)
	defer d.Close()

	d.Submit(context.Background(), testOpp())
	select {
	case p := <-exec.calls:
		t.Fatalf("expected no execution below min amount, got plan %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubmitSizesPlanToBalance(t *testing.T) {
	cfg := config.DispatcherConfig{MaxWorkers: 2, PerExchangeConcurrency: 1, DefaultMinAmount: 1}
	reader := &fakeBalanceReader{balance: 25}
	exec := &fakeExecutor{calls: make(chan models.SwapPlan, 1), result: models.SwapResult{OK: true, Delta: 0.1}}
	d := newTestDispatcher(cfg, reader, exec)
	defer d.Close()

	d.Submit(context.Background(), testOpp())
	plan := waitPlan(t, exec.calls)
	if plan.Amount != 25 {
		t.Errorf("plan.Amount = %v, want 25 (anchor free balance)", plan.Amount)
	}
	if len(plan.Hops) != 3 {
		t.Errorf("expected 3 hops from a 4-node cycle, got %d", len(plan.Hops))
	}
}

// TestVenueSemaphoreDropsWhenBusy exercises the non-blocking per-venue
// gate: a second submit while the first still holds its slot is dropped.
func TestVenueSemaphoreDropsWhenBusy(t *testing.T) {
	cfg := config.DispatcherConfig{MaxWorkers: 1, PerExchangeConcurrency: 1, DefaultMinAmount: 1}
	reader := &fakeBalanceReader{balance: 25}
	release := make(chan struct{})
	exec := &fakeExecutor{calls: make(chan models.SwapPlan, 2), result: models.SwapResult{OK: true}}
	d := newTestDispatcher(cfg, reader, exec)
	defer d.Close()

	// Occupy the single venue slot and the single worker with a job that
	// blocks until we release it, by wrapping Submit's sem acquire via a
	// slow executor.
	blocking := &blockingExecutor{inner: exec, release: release, entered: make(chan struct{})}
	d.Exec = blocking

	d.Submit(context.Background(), testOpp())
	<-blocking.entered // first job is now running and holds the venue slot

	before := testutil.ToFloat64(DroppedTotal.WithLabelValues("v", "busy"))
	d.Submit(context.Background(), testOpp())
	after := testutil.ToFloat64(DroppedTotal.WithLabelValues("v", "busy"))
	if after != before+1 {
		t.Errorf("expected the second submit to be dropped as busy, dropped count %v -> %v", before, after)
	}

	close(release)
}

type blockingExecutor struct {
	inner   *fakeExecutor
	release chan struct{}
	entered chan struct{}
}

func (b *blockingExecutor) Execute(ctx context.Context, plan models.SwapPlan) (models.SwapResult, error) {
	close(b.entered)
	<-b.release
	return b.inner.Execute(ctx, plan)
}

// TestEmergencyPauseOnNegativeDelta is spec §8 scenario S6: a negative
// realized delta trips the per-venue emergency pause, and a later submit
// to that venue is dropped without reaching the executor.
func TestEmergencyPauseOnNegativeDelta(t *testing.T) {
	cfg := config.DispatcherConfig{MaxWorkers: 2, PerExchangeConcurrency: 2, DefaultMinAmount: 1, EmergencyOnNegative: true}
	reader := &fakeBalanceReader{balance: 25}
	exec := &fakeExecutor{calls: make(chan models.SwapPlan, 2), result: models.SwapResult{OK: true, Delta: -0.2}}
	d := newTestDispatcher(cfg, reader, exec)
	defer d.Close()

	d.Submit(context.Background(), testOpp())
	waitPlan(t, exec.calls)

	// Give the worker goroutine a beat to apply the pause after Execute
	// returns (it runs synchronously right after the call in run()).
	deadline := time.Now().Add(time.Second)
	for !d.isPaused("v") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !d.isPaused("v") {
		t.Fatal("expected venue v to be paused after a negative-delta swap")
	}

	d.Submit(context.Background(), testOpp())
	select {
	case p := <-exec.calls:
		t.Fatalf("expected the paused venue to skip dispatch, got plan %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMinAmountPerVenueOverride(t *testing.T) {
	cfg := config.DispatcherConfig{
		MaxWorkers: 1, PerExchangeConcurrency: 1, DefaultMinAmount: 1,
		MinAmounts: map[string]float64{"v": 100},
	}
	reader := &fakeBalanceReader{balance: 50}
	exec := &fakeExecutor{calls: make(chan models.SwapPlan, 1), result: models.SwapResult{OK: true}}
	d := newTestDispatcher(cfg, reader, exec)
	defer d.Close()

	d.Submit(context.Background(), testOpp())
	select {
	case p := <-exec.calls:
		t.Fatalf("expected the per-venue min_amount override to block this balance, got plan %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}
