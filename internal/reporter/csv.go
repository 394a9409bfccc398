package reporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/svyatogor45/radar-arb/internal/models"
)

// CSVSink writes the four artifact schemas of spec §6 as flat CSV files
// under Dir, one file per (kind, quote) pair, grounded on the reader-side
// csv.NewReader idiom in chidi150c-coinbase/backtest.go. Rows are appended
// under one sink-wide mutex shared by all files; the header is written exactly once, on first
// touch, so a quiet iteration still produces a header-only file (spec §8
// scenario S1).
type CSVSink struct {
	Dir string

	mu      sync.Mutex
	writers map[string]*csv.Writer
	files   map[string]*os.File
}

// NewCSVSink returns a Sink writing under dir, creating it if necessary.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reporter: create dir: %w", err)
	}
	return &CSVSink{
		Dir:     dir,
		writers: make(map[string]*csv.Writer),
		files:   make(map[string]*os.File),
	}, nil
}

func (s *CSVSink) writerFor(name string, header []string) (*csv.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.writers[name]; ok {
		return w, nil
	}

	path := filepath.Join(s.Dir, name)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("reporter: open %s: %w", name, err)
	}
	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("reporter: write header %s: %w", name, err)
		}
		w.Flush()
	}
	s.files[name] = f
	s.writers[name] = w
	return w, nil
}

// Close flushes and closes every file opened so far.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, w := range s.writers {
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.files[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var bfHeader = []string{
	"exchange", "path", "net_pct", "inv", "est_after", "hops", "iteration", "ts",
	"net_pct_raw", "slippage_bps", "fee_bps_total", "used_ws",
}

// EmitBF appends BF opportunity rows, or touches a header-only file when
// opps is empty (spec §8 S1: "CSV produced with header only").
func (s *CSVSink) EmitBF(quote string, opps []models.Opportunity) error {
	name := fmt.Sprintf("arbitrage_bf_%s_ccxt.csv", quote)
	w, err := s.writerFor(name, bfHeader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opps {
		row := []string{
			o.Venue,
			o.Cycle.PathString(),
			formatFloat(o.NetPct),
			formatFloat(o.Inv),
			formatFloat(o.EstAfter),
			strconv.Itoa(o.Hops),
			strconv.FormatInt(o.Iteration, 10),
			o.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(o.NetPctRaw),
			formatFloat(o.SlippageBps),
			formatFloat(o.FeeBpsTotal),
			strconv.FormatBool(o.UsedWS),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("reporter: write bf row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

var triHeader = []string{
	"exchange", "path", "r1", "r2", "r3", "net_pct", "inv", "est_after", "iteration", "ts",
}

// EmitTri appends triangular opportunity rows.
func (s *CSVSink) EmitTri(quote string, opps []models.Opportunity) error {
	name := fmt.Sprintf("arbitrage_tri_%s_ccxt.csv", quote)
	w, err := s.writerFor(name, triHeader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opps {
		row := []string{
			o.Venue,
			o.Cycle.PathString(),
			formatFloat(o.R1),
			formatFloat(o.R2),
			formatFloat(o.R3),
			formatFloat(o.NetPct),
			formatFloat(o.Inv),
			formatFloat(o.EstAfter),
			strconv.FormatInt(o.Iteration, 10),
			o.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("reporter: write tri row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

var persistenceHeader = []string{
	"exchange", "path", "first_seen", "last_seen", "occurrences", "max_streak", "approx_duration_s",
}

// EmitPersistence overwrites the persistence snapshot file with the
// tracker's current table (unlike the append-only detection CSVs, this
// one is a point-in-time dump, so each call truncates and rewrites it).
func (s *CSVSink) EmitPersistence(quote string, records []models.PersistenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("arbitrage_bf_%s_persistence.csv", quote)
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("reporter: create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(persistenceHeader); err != nil {
		return fmt.Errorf("reporter: write persistence header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Venue,
			r.CyclePath,
			r.FirstSeen.UTC().Format(time.RFC3339),
			r.LastSeen.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.Occurrences, 10),
			strconv.FormatInt(r.MaxStreak, 10),
			formatFloat(r.ApproxDurationSeconds()),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("reporter: write persistence row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

var simulationHeader = []string{
	"exchange", "start_currency", "start_balance", "end_currency", "end_balance", "roi_pct", "iterations",
}

// EmitSimulationSummary overwrites the simulation summary file with one
// row per venue, like EmitPersistence a point-in-time dump rather than an
// append log. roi_pct is computed with decimal.Decimal rather than
// float64: it is the one figure in this file meant to be read by a human
// as an exact percentage, so it is worth avoiding float accumulation
// drift across a long-running simulation's balance updates.
func (s *CSVSink) EmitSimulationSummary(quote string, rows []SimulationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("arbitrage_bf_simulation_summary_%s_ccxt.csv", quote)
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("reporter: create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(simulationHeader); err != nil {
		return fmt.Errorf("reporter: write simulation header: %w", err)
	}
	for _, row := range rows {
		roi := roiPct(row.StartBalance, row.EndBalance)
		record := []string{
			row.Exchange,
			row.StartCurrency,
			formatFloat(row.StartBalance),
			row.EndCurrency,
			formatFloat(row.EndBalance),
			roi.StringFixed(4),
			strconv.FormatInt(row.Iterations, 10),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("reporter: write simulation row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func roiPct(start, end float64) decimal.Decimal {
	startD := decimal.NewFromFloat(start)
	if startD.IsZero() {
		return decimal.Zero
	}
	endD := decimal.NewFromFloat(end)
	return endD.Div(startD).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
