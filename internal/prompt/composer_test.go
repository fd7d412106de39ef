package prompt

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func valid(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestFormatContact(t *testing.T) {
	tests := []struct {
		name    string
		contact models.Contact
		want    string
	}{
		{
			name:    "all fields",
			contact: models.Contact{Name: "Jane", Company: valid("Acme"), Email: valid("j@acme.io"), PhoneNumber: valid("555-1234")},
			want:    "• Jane (Acme) - j@acme.io - 555-1234",
		},
		{
			name:    "name only",
			contact: models.Contact{Name: "Bob"},
			want:    "• Bob",
		},
		{
			name:    "phone without email",
			contact: models.Contact{Name: "Ann", PhoneNumber: valid("555")},
			want:    "• Ann - 555",
		},
		{
			name:    "empty optional strings are omitted",
			contact: models.Contact{Name: "Eve", Company: valid("")},
			want:    "• Eve",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatContact(tt.contact))
		})
	}
}

func TestFormatNote(t *testing.T) {
	assert.Equal(t, "• Call", FormatNote(models.Note{Title: "Call"}))
	assert.Equal(t, "• Call: about pricing", FormatNote(models.Note{Title: "Call", Description: valid("about pricing")}))
	assert.Equal(t,
		"• Call: about pricing (Related to: Jane, Bob)",
		FormatNote(models.Note{Title: "Call", Description: valid("about pricing"), RelatedContacts: []string{"Jane", "Bob"}}),
	)
	assert.Equal(t, "• Call (Related to: Jane)", FormatNote(models.Note{Title: "Call", RelatedContacts: []string{"Jane"}}))
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "", FormatHistory(nil))

	var history []models.Exchange
	for i := 1; i <= 5; i++ {
		history = append(history, models.NewExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), time.Now()))
	}
	got := FormatHistory(history)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, HistoryEntries)
	assert.Equal(t, "Human: q3", lines[0])
	assert.Equal(t, "AI: a3", lines[1])
	assert.Equal(t, "AI: a5", lines[5])
}

func TestBuild_EmptyData(t *testing.T) {
	var c Composer
	out := c.Build(Input{Question: "Who is Jane?"})

	assert.Contains(t, out, "CONTACTS:\nNo contacts found.")
	assert.Contains(t, out, "NOTES:\nNo notes found.")
	assert.NotContains(t, out, "Previous conversation")
	assert.True(t, strings.HasSuffix(out, "Human: Who is Jane?\nAI: "))
}

func TestBuild_WithDataAndHistory(t *testing.T) {
	c := NewComposer(nil, 0)
	out := c.Build(Input{
		Question: "When did I meet Jane?",
		Contacts: []models.Contact{{ID: 1, Name: "Jane", Company: valid("Acme")}},
		Notes:    []models.Note{{ID: 1, Title: "Lunch", RelatedContacts: []string{"Jane"}}},
		History:  []models.Exchange{models.NewExchange("hi", "hello", time.Now())},
	})

	assert.Contains(t, out, "• Jane (Acme)")
	assert.Contains(t, out, "• Lunch (Related to: Jane)")
	assert.Contains(t, out, "Previous conversation:\nHuman: hi\nAI: hello")
	assert.Contains(t, out, "read-only")
	assert.True(t, strings.HasSuffix(out, "\nHuman: When did I meet Jane?\nAI: "))
}

func TestBuild_Deterministic(t *testing.T) {
	in := Input{
		Question: "q",
		Contacts: []models.Contact{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
		Notes:    []models.Note{{ID: 1, Title: "n"}},
		History:  []models.Exchange{models.NewExchange("x", "y", time.Unix(0, 0))},
	}
	c := NewComposer(wordCounter{}, 100)
	assert.Equal(t, c.Build(in), c.Build(in))
}

func TestBuild_TokenBudget(t *testing.T) {
	var contacts []models.Contact
	for i := 0; i < 10; i++ {
		contacts = append(contacts, models.Contact{ID: int64(i), Name: fmt.Sprintf("Person%d", i)})
	}
	notes := []models.Note{{ID: 1, Title: "Note"}}

	// Each contact line is two words: "•" and the name.
	c := NewComposer(wordCounter{}, 6)
	out := c.Build(Input{Question: "q", Contacts: contacts, Notes: notes})

	assert.Contains(t, out, "• Person2")
	assert.NotContains(t, out, "• Person3")
	assert.Contains(t, out, "(7 more contacts not shown)")
	assert.Contains(t, out, "(1 more notes not shown)")
	assert.NotContains(t, out, noNotes)
}

func TestBuild_BudgetLargeEnough(t *testing.T) {
	contacts := []models.Contact{{ID: 1, Name: "A"}}
	unbounded := (&Composer{}).Build(Input{Question: "q", Contacts: contacts})
	bounded := NewComposer(wordCounter{}, 1000).Build(Input{Question: "q", Contacts: contacts})
	assert.Equal(t, unbounded, bounded)
}

func TestTiktokenCounter(t *testing.T) {
	counter, err := NewTiktokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, counter.Count(""))
	assert.Greater(t, counter.Count("Jane Smith works at Acme Corporation"), 3)
}
