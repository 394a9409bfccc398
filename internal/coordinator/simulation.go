package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/svyatogor45/radar-arb/internal/config"
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/reporter"
	"github.com/svyatogor45/radar-arb/pkg/utils"
)

// WalletReader is the one balance call the simulation needs to seed its
// starting state from a live wallet. exchange.Adapter satisfies it
// structurally; test doubles implement it directly.
type WalletReader interface {
	FetchBalance(ctx context.Context, currency models.Currency) (float64, error)
}

// simState is one venue's running simulated wallet.
type simState struct {
	startCcy   models.Currency
	startBal   float64
	ccy        models.Currency
	balance    float64
	iterations int64
}

// Simulation keeps a compounding anchor balance per venue and applies one
// selected round-trip opportunity per iteration, without placing orders.
// It feeds the arbitrage_bf_simulation_summary_<quote>_ccxt.csv artifact
// (spec §6) through reporter.Sink.EmitSimulationSummary.
type Simulation struct {
	cfg    config.DetectionConfig
	logger *utils.Logger

	mu    sync.Mutex
	state map[string]*simState
}

// NewSimulation seeds one simState per venue. When cfg.SimulateFromWallet
// is set and the venue has a WalletReader, the starting anchor and balance
// come from the live wallet: PreferredAnchor "USDT"/"USDC" force that
// anchor, anything else means pick the anchor holding more, preferring
// USDT on an exact tie (the deterministic tie-break of spec §9's open
// question). Without wallet seeding the balance starts at SimulateStart,
// falling back to InvestmentAmount when unset.
func NewSimulation(ctx context.Context, cfg config.DetectionConfig, wallets map[string]WalletReader, venues []string, logger *utils.Logger) *Simulation {
	s := &Simulation{
		cfg:    cfg,
		logger: logger,
		state:  make(map[string]*simState, len(venues)),
	}
	defaultCcy := models.Canon(cfg.Quote)
	if len(cfg.BFAllowedQuotes) > 0 {
		defaultCcy = models.Canon(cfg.BFAllowedQuotes[0])
	}
	for _, venue := range venues {
		st := &simState{ccy: defaultCcy}
		if cfg.SimulateFromWallet {
			st.ccy, st.balance = seedFromWallet(ctx, cfg.PreferredAnchor, wallets[venue])
			if logger != nil {
				logger.Debug("simulation_wallet_seed", utils.Exchange(venue),
					zap.String("currency", string(st.ccy)), zap.Float64("balance", st.balance))
			}
		} else if cfg.SimulateStart > 0 {
			st.balance = cfg.SimulateStart
		} else {
			st.balance = cfg.InvestmentAmount
		}
		st.startCcy = st.ccy
		st.startBal = st.balance
		s.state[venue] = st
	}
	return s
}

// seedFromWallet reads the USDT/USDC free balances and resolves the
// starting anchor per the prefer rule. A missing or failing wallet seeds
// a zero balance so the simulation never assumes funds it can't see.
func seedFromWallet(ctx context.Context, prefer string, w WalletReader) (models.Currency, float64) {
	if w == nil {
		if prefer == "USDC" {
			return "USDC", 0
		}
		return "USDT", 0
	}
	usdt, err1 := w.FetchBalance(ctx, "USDT")
	usdc, err2 := w.FetchBalance(ctx, "USDC")
	if err1 != nil {
		usdt = 0
	}
	if err2 != nil {
		usdc = 0
	}
	switch prefer {
	case "USDT":
		return "USDT", usdt
	case "USDC":
		return "USDC", usdc
	default:
		if usdt >= usdc {
			return "USDT", usdt
		}
		return "USDC", usdc
	}
}

// Apply consumes one iteration's opportunities for a venue: it selects a
// round-trip cycle anchored on the current simulated currency (or, with
// auto-switch, the best cycle on any allowed anchor when it beats the
// current anchor's best by SimulateSwitchThreshold net%) and compounds
// the running balance by the cycle's net return.
func (s *Simulation) Apply(venue string, opps []models.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[venue]
	if !ok {
		return
	}
	st.iterations++

	bestPerAnchor := make(map[models.Currency]models.Opportunity)
	for _, opp := range opps {
		if !opp.Cycle.IsRoundTrip() || len(opp.Cycle.Nodes) == 0 {
			continue
		}
		anchor := opp.Cycle.Nodes[0]
		cur, seen := bestPerAnchor[anchor]
		if !seen {
			bestPerAnchor[anchor] = opp
			continue
		}
		if s.cfg.SimulateSelect != "first" && opp.NetPct > cur.NetPct {
			bestPerAnchor[anchor] = opp
		}
	}

	selected, haveCurrent := bestPerAnchor[st.ccy]
	chosenAnchor := st.ccy
	if s.cfg.SimulateAutoSwitch {
		var overallAnchor models.Currency
		var overall models.Opportunity
		haveOverall := false
		for anchor, opp := range bestPerAnchor {
			if !haveOverall || opp.NetPct > overall.NetPct {
				overallAnchor, overall, haveOverall = anchor, opp, true
			}
		}
		if haveOverall {
			curNet := -1e9
			if haveCurrent {
				curNet = selected.NetPct
			}
			if overall.NetPct-curNet >= s.cfg.SimulateSwitchThreshold {
				chosenAnchor, selected, haveCurrent = overallAnchor, overall, true
			}
		}
	}
	if !haveCurrent {
		return
	}
	if chosenAnchor != st.ccy {
		if s.logger != nil {
			s.logger.Debug("simulation_anchor_switch", utils.Exchange(venue),
				zap.String("from", string(st.ccy)), zap.String("to", string(chosenAnchor)))
		}
		st.ccy = chosenAnchor
	}

	before := st.balance
	st.balance = before * (1 + selected.NetPct/100)
	if s.logger != nil {
		s.logger.Info("simulation_pick", utils.Exchange(venue),
			zap.String("path", selected.Cycle.PathString()),
			zap.Float64("net_pct", selected.NetPct),
			zap.String("currency", string(st.ccy)),
			zap.Float64("balance_before", before),
			zap.Float64("balance_after", st.balance),
			zap.Int64("iteration", st.iterations))
	}
}

// Rows snapshots every venue's state as summary rows, sorted order left
// to the sink.
func (s *Simulation) Rows() []reporter.SimulationRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]reporter.SimulationRow, 0, len(s.state))
	for venue, st := range s.state {
		rows = append(rows, reporter.SimulationRow{
			Exchange:      venue,
			StartCurrency: string(st.startCcy),
			StartBalance:  st.startBal,
			EndCurrency:   string(st.ccy),
			EndBalance:    st.balance,
			Iterations:    st.iterations,
		})
	}
	return rows
}
