package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/tablemate/notifyd/internal/store"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_kv_snapshots",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&store.KVSnapshot{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&store.KVSnapshot{})
			},
		},
	})

	return m.Migrate()
}
