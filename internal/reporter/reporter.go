// Package reporter is the narrow "Reporter sink" collaborator named in
// spec §1/§6: the core never formats a report itself, it only emits rows
// through this interface. CSV is the one concrete implementation, writing
// the bit-exact schemas of spec §6; an external renderer consumes the
// files (explicit Non-goal: "does not provide dashboards beyond producing
// snapshots").
package reporter

import "github.com/svyatogor45/radar-arb/internal/models"

// SimulationRow is one per-venue row of the compound-simulation summary
// (spec §6 arbitrage_bf_simulation_summary_<quote>_ccxt.csv): the running
// balance of a simulated wallet that applies one selected opportunity per
// iteration, no real trades.
type SimulationRow struct {
	Exchange      string
	StartCurrency string
	StartBalance  float64
	EndCurrency   string
	EndBalance    float64
	Iterations    int64
}

// Sink is the reporter collaborator the detection and execution sides
// write to. Implementations must not block the hot detection/dispatch
// path for long; the CSV sink below appends under one sink-wide mutex.
type Sink interface {
	EmitBF(quote string, opps []models.Opportunity) error
	EmitTri(quote string, opps []models.Opportunity) error
	EmitPersistence(quote string, records []models.PersistenceRecord) error
	EmitSimulationSummary(quote string, rows []SimulationRow) error
}
