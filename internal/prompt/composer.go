// Package prompt renders CRM data and conversation history into model input text.
package prompt

import (
	"fmt"
	"strings"

	"github.com/thebtf/crm-assistant/pkg/models"
)

// HistoryEntries is the number of history lines (Human/AI) included in a prompt.
const HistoryEntries = 6

const (
	noContacts = "No contacts found."
	noNotes    = "No notes found."
)

const instructions = `You are a helpful assistant for a CRM system. You answer questions about the user's contacts and notes.

RULES:
- Answer ONLY from the contacts and notes listed below. If the data does not contain the answer, say so.
- Do not open with formal preambles such as "Based on the information provided". Start with the answer.
- You have read-only access. If asked to add, change or delete contacts or notes, explain that you can only read them.
- Be concise and direct.`

// TokenCounter counts model tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// Input is everything needed to render one prompt.
type Input struct {
	Question string
	Contacts []models.Contact
	Notes    []models.Note
	History  []models.Exchange
}

// Composer renders prompts. The zero value renders without a token budget.
type Composer struct {
	counter TokenCounter
	budget  int
}

// NewComposer creates a composer that bounds the data sections to budget tokens.
// A nil counter or a non-positive budget disables the bound.
func NewComposer(counter TokenCounter, budget int) *Composer {
	return &Composer{counter: counter, budget: budget}
}

// Build renders the prompt. Identical inputs always produce identical output.
func (c *Composer) Build(in Input) string {
	contacts := make([]string, 0, len(in.Contacts))
	for _, ct := range in.Contacts {
		contacts = append(contacts, FormatContact(ct))
	}
	notes := make([]string, 0, len(in.Notes))
	for _, n := range in.Notes {
		notes = append(notes, FormatNote(n))
	}

	if c != nil && c.counter != nil && c.budget > 0 {
		remaining := c.budget
		contacts, remaining = c.fit(contacts, remaining, "contacts")
		notes, _ = c.fit(notes, remaining, "notes")
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nCONTACTS:\n")
	writeSection(&b, contacts, noContacts)
	b.WriteString("\n\nNOTES:\n")
	writeSection(&b, notes, noNotes)
	b.WriteString("\n\n")

	if history := FormatHistory(in.History); history != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	b.WriteString("Human: ")
	b.WriteString(in.Question)
	b.WriteString("\nAI: ")
	return b.String()
}

// FormatContact renders one contact line, omitting absent fields.
func FormatContact(c models.Contact) string {
	line := "• " + c.Name
	if c.Company.Valid && c.Company.String != "" {
		line += " (" + c.Company.String + ")"
	}
	if c.Email.Valid && c.Email.String != "" {
		line += " - " + c.Email.String
	}
	if c.PhoneNumber.Valid && c.PhoneNumber.String != "" {
		line += " - " + c.PhoneNumber.String
	}
	return line
}

// FormatNote renders one note line, omitting absent fields.
func FormatNote(n models.Note) string {
	line := "• " + n.Title
	if n.Description.Valid && n.Description.String != "" {
		line += ": " + n.Description.String
	}
	if len(n.RelatedContacts) > 0 {
		line += " (Related to: " + strings.Join(n.RelatedContacts, ", ") + ")"
	}
	return line
}

// FormatHistory renders the most recent exchanges as alternating Human/AI lines.
// At most HistoryEntries lines are produced; empty history renders as "".
func FormatHistory(history []models.Exchange) string {
	maxExchanges := HistoryEntries / 2
	if len(history) > maxExchanges {
		history = history[len(history)-maxExchanges:]
	}
	lines := make([]string, 0, len(history)*2)
	for _, ex := range history {
		lines = append(lines, "Human: "+ex.Question, "AI: "+ex.Answer)
	}
	return strings.Join(lines, "\n")
}

// fit keeps leading lines while they fit in budget and summarizes the rest.
func (c *Composer) fit(lines []string, budget int, noun string) ([]string, int) {
	kept := 0
	for _, line := range lines {
		cost := c.counter.Count(line)
		if cost > budget {
			break
		}
		budget -= cost
		kept++
	}
	if kept == len(lines) {
		return lines, budget
	}
	out := append(lines[:kept:kept], fmt.Sprintf("(%d more %s not shown)", len(lines)-kept, noun))
	return out, 0
}

func writeSection(b *strings.Builder, lines []string, fallback string) {
	if len(lines) == 0 {
		b.WriteString(fallback)
		return
	}
	b.WriteString(strings.Join(lines, "\n"))
}
