package handlers

import (
	"errors"
	"time"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/service"
)

// ErrMockDatabase is returned by MockBlacklistService when an operation is
// configured to fail via SetError.
var ErrMockDatabase = errors.New("mock database error")

// MockBlacklistService is an in-memory stand-in for blacklistServiceInterface, used by tests.
type MockBlacklistService struct {
	entries map[string]*models.BlacklistEntry
	nextID  int
	errs    map[string]error
}

func NewMockBlacklistService() *MockBlacklistService {
	return &MockBlacklistService{
		entries: make(map[string]*models.BlacklistEntry),
		nextID:  1,
		errs:    make(map[string]error),
	}
}

func (m *MockBlacklistService) SetError(op string, err error) {
	m.errs[op] = err
}

func (m *MockBlacklistService) AddEntry(symbol, reason string) *models.BlacklistEntry {
	entry := &models.BlacklistEntry{
		ID:        m.nextID,
		Symbol:    symbol,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.entries[symbol] = entry
	return entry
}

func (m *MockBlacklistService) GetBlacklist() ([]*models.BlacklistEntry, error) {
	if err := m.errs["get"]; err != nil {
		return nil, err
	}
	entries := make([]*models.BlacklistEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *MockBlacklistService) AddToBlacklist(symbol, reason string) (*models.BlacklistEntry, error) {
	if err := m.errs["add"]; err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, service.ErrBlacklistSymbolEmpty
	}
	if _, ok := m.entries[symbol]; ok {
		return nil, service.ErrBlacklistSymbolExists
	}
	return m.AddEntry(symbol, reason), nil
}

func (m *MockBlacklistService) RemoveFromBlacklist(symbol string) error {
	if err := m.errs["remove"]; err != nil {
		return err
	}
	if symbol == "" {
		return service.ErrBlacklistSymbolEmpty
	}
	if _, ok := m.entries[symbol]; !ok {
		return service.ErrBlacklistEntryNotFound
	}
	delete(m.entries, symbol)
	return nil
}

var _ blacklistServiceInterface = (*MockBlacklistService)(nil)
