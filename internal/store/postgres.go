package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ Store = (*Postgres)(nil)

// KVSnapshot is the gorm model behind the Postgres store: one row per
// snapshot key.
type KVSnapshot struct {
	Key       string `gorm:"primaryKey;type:varchar(255)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVSnapshot) TableName() string { return "kv_snapshots" }

// Postgres persists snapshots in a single keyed table.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var row KVSnapshot
	err := p.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres get %q: %w", key, err)
	}
	return row.Value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value string) error {
	row := KVSnapshot{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if err := p.db.WithContext(ctx).Delete(&KVSnapshot{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("postgres remove %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).Delete(&KVSnapshot{}, "key IN ?", keys).Error; err != nil {
		return fmt.Errorf("postgres remove %d keys: %w", len(keys), err)
	}
	return nil
}
