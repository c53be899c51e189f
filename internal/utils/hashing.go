package utils

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const DefaultHashDims = 1024

// ErrNoTokens is returned when text has nothing to embed.
var ErrNoTokens = errors.New("text has no embeddable tokens")

// HashEmbedder is an offline embedder based on signed feature hashing of
// lowercased word tokens. It needs no network and is stable across runs.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string { return fmt.Sprintf("hash-%d", h.dims) }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	v := make([]float32, h.dims)
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := sum % uint64(h.dims)
		if sum>>63 == 0 {
			v[idx]++
		} else {
			v[idx]--
		}
	}
	Normalize(v)
	return v, nil
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
