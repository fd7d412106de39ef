package llm

import (
	"context"
	"iter"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultTokenDelay is the pause between replayed word chunks.
const DefaultTokenDelay = 50 * time.Millisecond

// WordChunker streams by completing in blocking mode and replaying the
// answer as word chunks. It is the fallback for backends without native
// streaming; timing is presentational only.
type WordChunker struct {
	model Model
	delay time.Duration
}

// NewWordChunker wraps model. A zero delay replays without pauses.
func NewWordChunker(model Model, delay time.Duration) *WordChunker {
	return &WordChunker{model: model, delay: delay}
}

// Stream completes the prompt, then yields one chunk per word.
// Concatenating the chunks reproduces the completion exactly.
func (w *WordChunker) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := w.model.Complete(ctx, prompt)
		if err != nil {
			yield("", err)
			return
		}

		chunks := SplitWords(text)
		var timer *time.Timer
		for i, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
			if w.delay <= 0 || i == len(chunks)-1 {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.delay)
				defer timer.Stop()
			} else {
				timer.Reset(w.delay)
			}
			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case <-timer.C:
			}
		}
	}
}

// SplitWords splits text into chunks of one word plus its trailing whitespace.
// Leading whitespace stays with the first chunk.
func SplitWords(text string) []string {
	var chunks []string
	start := 0
	inSpace := false
	seenWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		space := unicode.IsSpace(r)
		if !space && inSpace && seenWord {
			chunks = append(chunks, text[start:i])
			start = i
		}
		if !space {
			seenWord = true
		}
		inSpace = space
		i += size
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
