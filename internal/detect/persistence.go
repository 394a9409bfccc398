package detect

import (
	"sync"
	"time"

	"github.com/svyatogor45/radar-arb/internal/models"
)

// PersistenceTracker is the pure in-memory table of §4.5/§3, keyed by
// (venue, cycle_path). Owned exclusively by the detection coordinator;
// updates are single-writer (spec §5 "Shared-resource policy").
//
// Optionally mirrored to a durable store via a WriteBehind callback — the
// in-memory table remains the source of truth read by the coordinator; the
// store is a durability mirror, not a cache it reads from on the hot path.
type PersistenceTracker struct {
	mu      sync.RWMutex
	records map[string]*models.PersistenceRecord

	WriteBehind func(models.PersistenceRecord)
}

// NewPersistenceTracker builds an empty tracker.
func NewPersistenceTracker() *PersistenceTracker {
	return &PersistenceTracker{records: make(map[string]*models.PersistenceRecord)}
}

func key(venue, cyclePath string) string { return venue + "|" + cyclePath }

// Observe updates the record for (venue, cyclePath) per the rule in spec
// §3: on re-observation in iteration i, if last_iteration == i-1 the
// current streak increments; else it resets to 1. max_streak is
// monotonically non-decreasing.
func (t *PersistenceTracker) Observe(venue, cyclePath string, iteration int64, now time.Time) models.PersistenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(venue, cyclePath)
	r, ok := t.records[k]
	if !ok {
		r = &models.PersistenceRecord{
			Venue:         venue,
			CyclePath:     cyclePath,
			FirstSeen:     now,
			LastSeen:      now,
			Occurrences:   1,
			CurrentStreak: 1,
			MaxStreak:     1,
			LastIteration: iteration,
		}
		t.records[k] = r
	} else {
		r.LastSeen = now
		r.Occurrences++
		if r.LastIteration == iteration-1 {
			r.CurrentStreak++
		} else {
			r.CurrentStreak = 1
		}
		if r.CurrentStreak > r.MaxStreak {
			r.MaxStreak = r.CurrentStreak
		}
		r.LastIteration = iteration
	}

	out := *r
	if t.WriteBehind != nil {
		t.WriteBehind(out)
	}
	return out
}

// Get returns the current record for (venue, cyclePath), if any.
func (t *PersistenceTracker) Get(venue, cyclePath string) (models.PersistenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[key(venue, cyclePath)]
	if !ok {
		return models.PersistenceRecord{}, false
	}
	return *r, true
}

// All returns a snapshot of every tracked record, for the reporter.
func (t *PersistenceTracker) All() []models.PersistenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.PersistenceRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}
