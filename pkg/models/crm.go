package models

import (
	"database/sql"

	json "github.com/goccy/go-json"
)

// Contact is a CRM contact owned by a single user.
type Contact struct {
	Company     sql.NullString `db:"company" json:"company"`
	PhoneNumber sql.NullString `db:"phone_number" json:"phone_number"`
	Email       sql.NullString `db:"contact_email" json:"contact_email"`
	Name        string         `db:"name" json:"name"`
	ID          int64          `db:"id" json:"id"`
}

// ContactJSON is a JSON-friendly representation of Contact.
// Absent optional fields render as null.
type ContactJSON struct {
	Company     *string `json:"company"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"contact_email"`
	Name        string  `json:"name"`
	ID          int64   `json:"id"`
}

// MarshalJSON implements json.Marshaler for Contact.
func (c Contact) MarshalJSON() ([]byte, error) {
	return json.Marshal(ContactJSON{
		ID:          c.ID,
		Name:        c.Name,
		Company:     nullablePtr(c.Company),
		PhoneNumber: nullablePtr(c.PhoneNumber),
		Email:       nullablePtr(c.Email),
	})
}

// Note is a CRM note that may reference any number of the owner's contacts.
// RelatedContacts is derived at read time from ContactIDs and is never stored.
type Note struct {
	Description     sql.NullString `db:"description" json:"description"`
	Title           string         `db:"title" json:"title"`
	ContactIDs      JSONInt64Array `db:"contact_ids" json:"contact_ids"`
	RelatedContacts []string       `db:"-" json:"related_contacts"`
	ID              int64          `db:"id" json:"id"`
}

// NoteJSON is a JSON-friendly representation of Note.
type NoteJSON struct {
	Description     *string  `json:"description"`
	Title           string   `json:"title"`
	ContactIDs      []int64  `json:"contact_ids"`
	RelatedContacts []string `json:"related_contacts"`
	ID              int64    `json:"id"`
}

// MarshalJSON implements json.Marshaler for Note.
// Nil slices are emitted as empty arrays.
func (n Note) MarshalJSON() ([]byte, error) {
	j := NoteJSON{
		ID:              n.ID,
		Title:           n.Title,
		Description:     nullablePtr(n.Description),
		ContactIDs:      []int64(n.ContactIDs),
		RelatedContacts: n.RelatedContacts,
	}
	if j.ContactIDs == nil {
		j.ContactIDs = []int64{}
	}
	if j.RelatedContacts == nil {
		j.RelatedContacts = []string{}
	}
	return json.Marshal(j)
}

// UserData is the complete read-only view of one user's CRM records.
type UserData struct {
	Contacts []Contact `json:"contacts"`
	Notes    []Note    `json:"notes"`
}

// Summary returns record counts for the data set.
func (d *UserData) Summary() DataSummary {
	if d == nil {
		return DataSummary{}
	}
	return DataSummary{
		ContactsCount: len(d.Contacts),
		NotesCount:    len(d.Notes),
	}
}

// DataSummary reports how many records were available when a question was answered.
type DataSummary struct {
	ContactsCount int `json:"contacts_count"`
	NotesCount    int `json:"notes_count"`
}

// NullString creates a sql.NullString from a string. Empty strings are treated as absent.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullablePtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
