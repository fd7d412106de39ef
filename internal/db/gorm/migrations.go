package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations creates the CRM tables using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	return m.Migrate()
}

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		// Migration 001: contacts and notes
		{
			ID: "001_crm_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Contact{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Note{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("notes", "contacts")
			},
		},

		// Migration 002: lookup index for note contact references
		{
			ID: "002_notes_contact_ids_gin",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notes_contact_ids ON notes USING GIN (contact_ids)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_notes_contact_ids`).Error
			},
		},
	}
}
