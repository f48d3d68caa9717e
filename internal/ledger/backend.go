package ledger

import (
	"errors"
	"fmt"

	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/store"
	"gorm.io/gorm"
)

// Backend persists the full request snapshot.
type Backend interface {
	Load() ([]*models.MediaRequest, error)
	Save(reqs []*models.MediaRequest) error
}

// JSONBackend stores requests as a JSON array in one file.
type JSONBackend struct {
	file *store.File
}

// NewJSONBackend returns a backend writing to path.
func NewJSONBackend(path string) (*JSONBackend, error) {
	f, err := store.NewFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &JSONBackend{file: f}, nil
}

// Load reads the snapshot; a missing file is an empty ledger.
func (b *JSONBackend) Load() ([]*models.MediaRequest, error) {
	var reqs []*models.MediaRequest
	if _, err := b.file.Load(&reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// Save rewrites the snapshot file.
func (b *JSONBackend) Save(reqs []*models.MediaRequest) error {
	if reqs == nil {
		reqs = []*models.MediaRequest{}
	}
	return b.file.Save(reqs)
}

// GormBackend stores requests in the media_requests table.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend returns a backend over db. The table must already be migrated.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if db == nil {
		return nil, errors.New("ledger: db is required")
	}
	return &GormBackend{db: db}, nil
}

// Load reads every row.
func (b *GormBackend) Load() ([]*models.MediaRequest, error) {
	var reqs []*models.MediaRequest
	if err := b.db.Order("requested_at ASC, id ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("ledger: load requests: %w", err)
	}
	return reqs, nil
}

// Save replaces the table contents in one transaction.
func (b *GormBackend) Save(reqs []*models.MediaRequest) error {
	return b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.MediaRequest{}).Error; err != nil {
			return fmt.Errorf("ledger: clear requests: %w", err)
		}
		if len(reqs) == 0 {
			return nil
		}
		rows := make([]*models.MediaRequest, len(reqs))
		for i, r := range reqs {
			rows[i] = r.Clone()
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("ledger: write requests: %w", err)
		}
		return nil
	})
}
