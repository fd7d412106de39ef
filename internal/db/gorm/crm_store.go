package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// CRMStore reads a user's contacts and notes.
type CRMStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewCRMStore creates a new CRM store.
func NewCRMStore(store *Store) *CRMStore {
	return &CRMStore{db: store.DB, timeout: DefaultQueryTimeout}
}

// FetchUserData returns every contact and note owned by userID, ordered by id.
// Each note's RelatedContacts lists the names of the referenced contacts that
// exist and belong to the same user, once each in the contacts' stored order.
// Other ids are dropped.
// All queries share one pooled connection that is released before returning.
func (s *CRMStore) FetchUserData(ctx context.Context, userID string) (*models.UserData, error) {
	ctx, cancel := WithTimeout(ctx, s.timeout, "fetch_user_data")
	defer cancel()

	data := &models.UserData{
		Contacts: []models.Contact{},
		Notes:    []models.Note{},
	}

	err := s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var contacts []Contact
		if err := conn.Where("user_id = ?", userID).Order("id").Find(&contacts).Error; err != nil {
			return wrapQueryError("query contacts", err)
		}
		for i := range contacts {
			data.Contacts = append(data.Contacts, contacts[i].toModel())
		}

		var notes []Note
		if err := conn.Where("user_id = ?", userID).Order("id").Find(&notes).Error; err != nil {
			return wrapQueryError("query notes", err)
		}

		names, err := s.lookupNames(conn, userID, referencedIDs(notes))
		if err != nil {
			return err
		}
		for i := range notes {
			n := notes[i].toModel()
			n.RelatedContacts = resolveNames(n.ContactIDs, names)
			data.Notes = append(data.Notes, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// contactName is one row of the related-contact lookup.
type contactName struct {
	Name string
	ID   int64
}

// lookupNames returns the contacts owned by userID among ids, in stored order.
// An empty id set skips the query.
func (s *CRMStore) lookupNames(conn *gorm.DB, userID string, ids []int64) ([]contactName, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []contactName
	err := conn.Model(&Contact{}).
		Select("id", "name").
		Where("id IN ? AND user_id = ?", ids, userID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapQueryError("resolve note contacts", err)
	}
	return rows, nil
}

// referencedIDs returns the distinct contact ids referenced by any note.
func referencedIDs(notes []Note) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for i := range notes {
		for _, id := range notes[i].ContactIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// resolveNames returns the names of the contacts referenced by ids, in the
// contacts' stored order. Each contact appears once; unknown ids are dropped.
func resolveNames(ids []int64, contacts []contactName) []string {
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, c := range contacts {
		if _, ok := wanted[c.ID]; ok {
			out = append(out, c.Name)
		}
	}
	return out
}
