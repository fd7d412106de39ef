package privacy

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength is the longest question accepted.
const MaxQueryLength = 2000

// ErrUnsafeQuery is returned for questions that look like injection attempts.
var ErrUnsafeQuery = errors.New("query contains potentially unsafe content")

// ErrQueryTooLong is returned for questions over MaxQueryLength characters.
var ErrQueryTooLong = errors.New("query too long")

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	markupChars   = regexp.MustCompile(`[<>{}]`)
	keywordRun    = regexp.MustCompile(`\b[a-z0-9]{2,}\b`)
)

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)exec\(`),
	regexp.MustCompile(`(?i)__import__`),
	regexp.MustCompile(`(?i)DROP\s+TABLE`),
	regexp.MustCompile(`(?i)DELETE\s+FROM`),
	regexp.MustCompile(`(?i)INSERT\s+INTO`),
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by from up about into through
		during before after above below between among is are was were be been being have has had do does did
		will would could should may might must can who what when where why how i me my you your he him his she
		her it its we us our they them their`) {
		stopWords[w] = struct{}{}
	}
}

// SanitizeInput collapses whitespace, truncates to maxLength characters
// and strips markup characters.
func SanitizeInput(text string, maxLength int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = whitespaceRun.ReplaceAllString(text, " ")
	if maxLength > 0 {
		text = Truncate(text, maxLength)
	}
	return markupChars.ReplaceAllString(text, "")
}

// ValidateQuerySafety rejects over-long questions and common injection payloads.
func ValidateQuerySafety(query string) error {
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	for _, p := range unsafePatterns {
		if p.MatchString(query) {
			return ErrUnsafeQuery
		}
	}
	return nil
}

// ExtractKeywords returns the lowercase words of query that are at least two
// characters long and not stop words, in order of appearance.
func ExtractKeywords(query string) []string {
	words := keywordRun.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			keywords = append(keywords, w)
		}
	}
	return keywords
}
