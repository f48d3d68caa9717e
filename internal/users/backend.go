package users

import (
	"errors"
	"fmt"

	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend persists the user list.
type Backend interface {
	Load() ([]*models.User, error)
	Save(users []*models.User) error
}

// JSONBackend stores users as a JSON array in one file.
type JSONBackend struct {
	file *store.File
}

// NewJSONBackend returns a backend writing to path.
func NewJSONBackend(path string) (*JSONBackend, error) {
	f, err := store.NewFile(path)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	return &JSONBackend{file: f}, nil
}

// Load reads the snapshot; a missing file is an empty directory.
func (b *JSONBackend) Load() ([]*models.User, error) {
	var users []*models.User
	if _, err := b.file.Load(&users); err != nil {
		return nil, err
	}
	return users, nil
}

// Save rewrites the snapshot file.
func (b *JSONBackend) Save(users []*models.User) error {
	if users == nil {
		users = []*models.User{}
	}
	return b.file.Save(users)
}

// GormBackend stores users in the users table.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend returns a backend over db. The table must already be migrated.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if db == nil {
		return nil, errors.New("users: db is required")
	}
	return &GormBackend{db: db}, nil
}

// Load reads every row.
func (b *GormBackend) Load() ([]*models.User, error) {
	var users []*models.User
	if err := b.db.Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	return users, nil
}

// Save upserts every user in one transaction. Rows for users no longer in
// the list are removed.
func (b *GormBackend) Save(users []*models.User) error {
	return b.db.Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(users))
		for _, u := range users {
			row := u.Clone()
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
				return fmt.Errorf("users: save %s: %w", u.ID, err)
			}
			ids = append(ids, u.ID)
		}
		q := tx.Model(&models.User{})
		if len(ids) > 0 {
			q = q.Where("id NOT IN ?", ids)
		} else {
			q = q.Where("1 = 1")
		}
		if err := q.Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("users: prune rows: %w", err)
		}
		return nil
	})
}
