package service

import (
	"strings"

	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/repository"
)

// MockBlacklistRepository is an in-memory stand-in for BlacklistRepositoryInterface, used by tests.
type MockBlacklistRepository struct {
	entries map[string]*models.BlacklistEntry

	createErr    error
	getErr       error
	existsErr    error
	deleteErr    error
	updateErr    error
	searchErr    error
}

func NewMockBlacklistRepository() *MockBlacklistRepository {
	return &MockBlacklistRepository{
		entries: make(map[string]*models.BlacklistEntry),
	}
}

func (m *MockBlacklistRepository) Create(entry *models.BlacklistEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.entries[entry.Symbol]; ok {
		return repository.ErrBlacklistEntryExists
	}
	m.entries[entry.Symbol] = entry
	return nil
}

func (m *MockBlacklistRepository) GetAll() ([]*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	entries := make([]*models.BlacklistEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *MockBlacklistRepository) GetBySymbol(symbol string) (*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	entry, ok := m.entries[symbol]
	if !ok {
		return nil, repository.ErrBlacklistEntryNotFound
	}
	return entry, nil
}

func (m *MockBlacklistRepository) Delete(symbol string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.entries[symbol]; !ok {
		return repository.ErrBlacklistEntryNotFound
	}
	delete(m.entries, symbol)
	return nil
}

func (m *MockBlacklistRepository) Exists(symbol string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.entries[symbol]
	return ok, nil
}

func (m *MockBlacklistRepository) UpdateReason(symbol, reason string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	entry, ok := m.entries[symbol]
	if !ok {
		return repository.ErrBlacklistEntryNotFound
	}
	entry.Reason = reason
	return nil
}

func (m *MockBlacklistRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.entries), nil
}

func (m *MockBlacklistRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.entries = make(map[string]*models.BlacklistEntry)
	return nil
}

func (m *MockBlacklistRepository) Search(query string) ([]*models.BlacklistEntry, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	query = strings.ToUpper(query)
	entries := make([]*models.BlacklistEntry, 0)
	for symbol, e := range m.entries {
		if strings.Contains(symbol, query) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

var _ BlacklistRepositoryInterface = (*MockBlacklistRepository)(nil)
