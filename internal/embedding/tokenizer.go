package embedding

import (
	"strings"
	"unicode"
)

// BERT special token IDs and hash vocabulary size.
const (
	clsTokenID = 101
	sepTokenID = 102
	vocabSize  = 30522
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps tokens to IDs by hashing, with no vocabulary file.
// Spaced text splits on whitespace; CJK runs split per rune, since incident
// descriptions are often Japanese with no word boundaries. Real token IDs
// differ from a trained wordpiece vocabulary, but the mapping is stable,
// which is what cache keys and tests need.
type HashTokenizer struct{}

// NewHashTokenizer returns a tokenizer with hash-based token IDs.
func NewHashTokenizer() *HashTokenizer {
	return &HashTokenizer{}
}

// Tokenize produces [CLS] token... [SEP] padded to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	tokens := SplitTokens(text)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, tok := range tokens {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(tok) % vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitTokens lowercases text and splits it into tokens: runs of letters or
// digits become one token each, except CJK characters, which become one
// token per rune. Everything else separates tokens.
func SplitTokens(text string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// HashString returns a deterministic non-negative hash for use as a token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
