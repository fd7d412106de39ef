package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/thebtf/crm-assistant/pkg/models"
)

func TestResolveNames(t *testing.T) {
	contacts := []contactName{{ID: 1, Name: "Jane"}, {ID: 2, Name: "Bob"}}

	tests := []struct {
		name string
		ids  []int64
		want []string
	}{
		{name: "unknown id dropped", ids: []int64{1, 2, 99}, want: []string{"Jane", "Bob"}},
		{name: "stored order wins over reference order", ids: []int64{2, 1, 99}, want: []string{"Jane", "Bob"}},
		{name: "repeated id listed once", ids: []int64{1, 1}, want: []string{"Jane"}},
		{name: "subset", ids: []int64{2}, want: []string{"Bob"}},
		{name: "no ids", ids: nil, want: []string{}},
		{name: "only unknown", ids: []int64{42}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveNames(tt.ids, contacts))
		})
	}
}

func TestReferencedIDs(t *testing.T) {
	notes := []Note{
		{ID: 1, ContactIDs: models.JSONInt64Array{1, 2}},
		{ID: 2},
		{ID: 3, ContactIDs: models.JSONInt64Array{2, 3}},
	}
	assert.Equal(t, []int64{1, 2, 3}, referencedIDs(notes))
	assert.Empty(t, referencedIDs([]Note{{ID: 1}}))
}

func TestContactToModel(t *testing.T) {
	row := Contact{
		ID:           5,
		Name:         "Jane",
		ContactEmail: sql.NullString{String: "jane@example.com", Valid: true},
	}
	m := row.toModel()
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, "jane@example.com", m.Email.String)
	assert.False(t, m.Company.Valid)
}

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError("op", nil))

	pgErr := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "bad"`}
	err := wrapQueryError("query contacts", fmt.Errorf("driver: %w", pgErr))
	assert.ErrorIs(t, err, ErrDataAccess)
	assert.Contains(t, err.Error(), "query contacts")
	assert.Contains(t, err.Error(), "SQLSTATE 22P02")

	err = wrapQueryError("query notes", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrDataAccess)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")

	cause := errors.New("connection refused")
	err = wrapQueryError("query notes", cause)
	assert.ErrorIs(t, err, cause)
}

func TestHealthInfoHealthy(t *testing.T) {
	var nilInfo *HealthInfo
	assert.False(t, nilInfo.Healthy())
	assert.True(t, (&HealthInfo{Status: "degraded"}).Healthy())
	assert.False(t, (&HealthInfo{Status: "unhealthy"}).Healthy())
}
