package assistant

import (
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/supportbot/internal/corpus"
)

const (
	// GroundingThreshold is the minimum share of reply content words that must
	// occur in the corpus.
	GroundingThreshold = 0.15
	// minContentWords is the count a reply must exceed before the ratio is trusted.
	minContentWords = 5
	// contentWordRunes is the length a token must exceed to count as a content word.
	contentWordRunes = 4
)

// Verdict is the outcome of a groundedness check.
type Verdict struct {
	Reply        string
	Overridden   bool
	Ratio        float64
	ContentWords int
}

// Validator flags replies with too little lexical overlap with the corpus.
// It is safe for concurrent use.
type Validator struct {
	vocab   map[string]struct{}
	refusal string
}

// NewValidator builds the corpus vocabulary once.
func NewValidator(c *corpus.Corpus) *Validator {
	contents := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		contents = append(contents, strings.ToLower(c.At(i).Content))
	}
	vocab := make(map[string]struct{})
	for _, w := range contentWords(strings.Join(contents, " ")) {
		vocab[w] = struct{}{}
	}
	return &Validator{vocab: vocab, refusal: strings.ToLower(NotFoundReply)}
}

// Check scores reply and decides what should be shown to the user.
func (v *Validator) Check(reply string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	if normalized == v.refusal {
		return Verdict{Reply: NotFoundReply}
	}

	words := contentWords(normalized)
	matches := 0
	for _, w := range words {
		if _, ok := v.vocab[w]; ok {
			matches++
		}
	}
	var ratio float64
	if len(words) > 0 {
		ratio = float64(matches) / float64(len(words))
	}

	verdict := Verdict{Ratio: ratio, ContentWords: len(words)}
	if ratio < GroundingThreshold && len(words) > minContentWords {
		verdict.Reply = NotFoundReply
		verdict.Overridden = true
		return verdict
	}
	verdict.Reply = strings.TrimSpace(reply)
	return verdict
}

// Validate returns only the reply to persist.
func (v *Validator) Validate(reply string) string {
	return v.Check(reply).Reply
}

func contentWords(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > contentWordRunes {
			out = append(out, f)
		}
	}
	return out
}
