package gorm

import (
	"database/sql"
	"time"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// GORM Models

// Contact is a row of the CRM contacts table.
type Contact struct {
	CreatedAt    time.Time
	UserID       string `gorm:"type:uuid;index:idx_contacts_user;not null"`
	Name         string `gorm:"not null"`
	Company      sql.NullString
	PhoneNumber  sql.NullString
	ContactEmail sql.NullString
	ID           int64 `gorm:"primaryKey;autoIncrement"`
}

func (Contact) TableName() string { return "contacts" }

// toModel converts the row to the domain model.
func (c *Contact) toModel() models.Contact {
	return models.Contact{
		ID:          c.ID,
		Name:        c.Name,
		Company:     c.Company,
		PhoneNumber: c.PhoneNumber,
		Email:       c.ContactEmail,
	}
}

// Note is a row of the CRM notes table.
type Note struct {
	CreatedAt   time.Time
	UserID      string `gorm:"type:uuid;index:idx_notes_user;not null"`
	Title       string `gorm:"not null"`
	Description sql.NullString
	ContactIDs  models.JSONInt64Array `gorm:"column:contact_ids;type:jsonb;default:'[]'"`
	ID          int64                 `gorm:"primaryKey;autoIncrement"`
}

func (Note) TableName() string { return "notes" }

// toModel converts the row to the domain model. RelatedContacts is filled by the caller.
func (n *Note) toModel() models.Note {
	return models.Note{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		ContactIDs:  n.ContactIDs,
	}
}
