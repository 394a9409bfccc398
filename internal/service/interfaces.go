package service

import (
	"github.com/svyatogor45/radar-arb/internal/models"
	"github.com/svyatogor45/radar-arb/internal/repository"
)

// BlacklistRepositoryInterface определяет интерфейс репозитория черного списка
type BlacklistRepositoryInterface interface {
	Create(entry *models.BlacklistEntry) error
	GetAll() ([]*models.BlacklistEntry, error)
	GetBySymbol(symbol string) (*models.BlacklistEntry, error)
	Delete(symbol string) error
	Exists(symbol string) (bool, error)
	UpdateReason(symbol, reason string) error
	Count() (int, error)
	DeleteAll() error
	Search(query string) ([]*models.BlacklistEntry, error)
}

// Проверяем, что реальный репозиторий реализует интерфейс
var _ BlacklistRepositoryInterface = (*repository.BlacklistRepository)(nil)
