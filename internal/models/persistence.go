package models

import "time"

// PersistenceRecord tracks how durably a (venue, cycle_path) opportunity
// has been observed across detection iterations.
type PersistenceRecord struct {
	Venue          string    `json:"venue" db:"venue"`
	CyclePath      string    `json:"cycle_path" db:"cycle_path"`
	FirstSeen      time.Time `json:"first_seen" db:"first_seen"`
	LastSeen       time.Time `json:"last_seen" db:"last_seen"`
	Occurrences    int64     `json:"occurrences" db:"occurrences"`
	CurrentStreak  int64     `json:"current_streak" db:"current_streak"`
	MaxStreak      int64     `json:"max_streak" db:"max_streak"`
	LastIteration  int64     `json:"last_iteration" db:"last_iteration"`
}

// ApproxDurationSeconds estimates how long the opportunity has persisted,
// for the reporter's persistence CSV.
func (r PersistenceRecord) ApproxDurationSeconds() float64 {
	return r.LastSeen.Sub(r.FirstSeen).Seconds()
}
