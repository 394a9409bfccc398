package detect

import (
	"math"
	"testing"
	"time"

	"github.com/svyatogor45/radar-arb/internal/graph"
	"github.com/svyatogor45/radar-arb/internal/models"
)

func tick(bid, ask, qvol float64) models.Ticker {
	return models.Ticker{Bid: bid, Ask: ask, QuoteVolume: qvol}
}

// buildTriangleGraph constructs the USDT/BTC/ETH universe from spec §8
// scenarios S1/S2: USDT->BTC via inverse BTC/USDT ask, BTC->ETH via
// inverse ETH/BTC ask, ETH->USDT via direct ETH/USDT bid.
func buildTriangleGraph(btcUSDTAsk, ethBTCAsk, ethUSDTBid float64) *graph.Graph {
	tickers := map[string]models.Ticker{
		"BTC/USDT": tick(0, btcUSDTAsk, 1_000_000),
		"ETH/BTC":  tick(0, ethBTCAsk, 1_000_000),
		"ETH/USDT": tick(ethUSDTBid, 0, 1_000_000),
	}
	currencies := []models.Currency{"USDT", "BTC", "ETH"}
	return graph.Build("testvenue", currencies, tickers, 0.001, true, 0)
}

func TestBellmanFordS1NoOpBelowThreshold(t *testing.T) {
	// USDT->BTC=0.00002 (ask=50000), BTC->ETH=20 (ask 1/20=0.05), ETH->USDT=2499
	g := buildTriangleGraph(1.0/0.00002, 1.0/20.0, 2499)
	opts := BFOptions{
		AllowedAnchors: []models.Currency{"USDT"},
		RequireQuote:   true,
		MinHops:        3,
		MaxHops:        5,
		MinNetPct:      0.5,
		FeeFraction:    0.001,
		TopPerVenue:    10,
	}
	opps := BellmanFord(g, opts, nil, 1000, 1, time.Now())
	if len(opps) != 0 {
		t.Fatalf("expected no opportunity below min_net threshold, got %+v", opps)
	}
}

func TestBellmanFordS2PositiveCycle(t *testing.T) {
	// USDT->BTC=0.000025 (ask=40000), BTC->ETH=20 (ask=0.05), ETH->USDT=2100
	g := buildTriangleGraph(1.0/0.000025, 1.0/20.0, 2100)
	opts := BFOptions{
		AllowedAnchors: []models.Currency{"USDT"},
		RequireQuote:   true,
		MinHops:        3,
		MaxHops:        5,
		MinNetPct:      0.5,
		FeeFraction:    0.001,
		TopPerVenue:    10,
	}
	opps := BellmanFord(g, opts, nil, 1000, 1, time.Now())
	if len(opps) != 1 {
		t.Fatalf("expected exactly one opportunity, got %d: %+v", len(opps), opps)
	}
	got := opps[0]
	if got.Cycle.PathString() != "USDT->BTC->ETH->USDT" {
		t.Errorf("path = %s, want USDT->BTC->ETH->USDT", got.Cycle.PathString())
	}
	if got.Hops != 3 {
		t.Errorf("hops = %d, want 3", got.Hops)
	}
	// Raw product is 1.05 (5% gross); with the post-fee effective rate
	// embedding (1-0.001) per hop, the realized product is
	// 1.05 * 0.999^3 ≈ 1.04685, i.e. net ≈ +4.69%.
	if got.NetPct < 4.5 || got.NetPct > 4.9 {
		t.Errorf("net_pct = %v, want roughly +4.7%%", got.NetPct)
	}
}

func TestCycleClosureInvariant(t *testing.T) {
	g := buildTriangleGraph(1.0/0.000025, 1.0/20.0, 2100)
	opts := BFOptions{
		AllowedAnchors: []models.Currency{"USDT"},
		RequireQuote:   true,
		MinHops:        3,
		MaxHops:        5,
		FeeFraction:    0.001,
		TopPerVenue:    10,
	}
	opps := BellmanFord(g, opts, nil, 1000, 1, time.Now())
	if len(opps) == 0 {
		t.Fatal("expected at least one cycle")
	}
	for _, o := range opps {
		prod := 1.0
		nodes := o.Cycle.Nodes
		for i := 0; i+1 < len(nodes); i++ {
			r, ok := g.Rate(nodes[i], nodes[i+1])
			if !ok {
				t.Fatalf("missing edge rate for %s->%s", nodes[i], nodes[i+1])
			}
			prod *= r
		}
		want := 1 + o.NetPct/100
		if math.Abs(prod-want) > 1e-9 {
			t.Errorf("closure invariant violated: prod=%v want=%v", prod, want)
		}
	}
}

func TestBlacklistRejectsCycle(t *testing.T) {
	bl := NewBlacklist([]string{"BTC/ETH"})
	c := models.Cycle{Nodes: []models.Currency{"USDT", "BTC", "ETH", "USDT"}}
	if !bl.RejectsCycle(c) {
		t.Fatal("expected cycle containing BTC->ETH pair to be rejected")
	}
	c2 := models.Cycle{Nodes: []models.Currency{"USDT", "SOL", "ETH", "USDT"}}
	if bl.RejectsCycle(c2) {
		t.Fatal("expected unrelated cycle to pass")
	}
}

func TestTriangularEmitsOnThreshold(t *testing.T) {
	g := buildTriangleGraph(1.0/0.000025, 1.0/20.0, 2100)
	opts := TriOptions{
		Anchor:       "USDT",
		FeeBpsPerHop: 10,
		MinNetBps:    10,
	}
	opps := Triangular(g, opts, nil, 1, time.Now())
	if len(opps) == 0 {
		t.Fatal("expected at least one triangular opportunity")
	}
}

func TestPersistenceMonotonicityAndStreakReset(t *testing.T) {
	tr := NewPersistenceTracker()
	now := time.Now()

	r1 := tr.Observe("v", "A->B->A", 1, now)
	if r1.CurrentStreak != 1 || r1.MaxStreak != 1 {
		t.Fatalf("first observation should start streak at 1, got %+v", r1)
	}

	r2 := tr.Observe("v", "A->B->A", 2, now)
	if r2.CurrentStreak != 2 || r2.MaxStreak != 2 {
		t.Fatalf("consecutive iteration should extend streak, got %+v", r2)
	}

	// skip iteration 3: observed again at iteration 5 -> streak resets to 1
	r3 := tr.Observe("v", "A->B->A", 5, now)
	if r3.CurrentStreak != 1 {
		t.Fatalf("non-consecutive observation should reset streak to 1, got %+v", r3)
	}
	if r3.MaxStreak != 2 {
		t.Fatalf("max streak must remain non-decreasing, got %+v", r3)
	}

	r4 := tr.Observe("v", "A->B->A", 6, now)
	if r4.CurrentStreak != 2 || r4.MaxStreak != 2 {
		t.Fatalf("expected streak to rebuild to 2 matching prior max, got %+v", r4)
	}
}

func TestPersistenceRotationCanonicity(t *testing.T) {
	c1 := models.Cycle{Nodes: []models.Currency{"USDT", "BTC", "ETH", "USDT"}}
	c2 := models.Cycle{Nodes: []models.Currency{"BTC", "ETH", "USDT", "BTC"}}.RotatedTo("USDT")
	if c1.PathString() != c2.PathString() {
		t.Errorf("rotated cycles should produce equal persistence keys: %s vs %s", c1.PathString(), c2.PathString())
	}
}
