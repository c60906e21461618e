package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the hash engine.
const DefaultHashDimensions = 4096

// HashEngine embeds text by feature hashing: each lowercased word and each
// adjacent word pair is hashed to a bucket with a sign, and the result is
// L2-normalised. Deterministic and offline; similar wording gives similar
// vectors, synonyms do not.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a HashEngine. dims <= 0 uses the default.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEngine{dims: dims}
}

// Embed implements Engine.
func (h *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, h.dims)
	words := splitWords(text)
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(v), nil
}

// ContentWords implements Lexical.
func (h *HashEngine) ContentWords(text string) []string {
	var out []string
	for _, w := range splitWords(text) {
		if _, skip := stopWords[w]; !skip {
			out = append(out, w)
		}
	}
	return out
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "that": {}, "the": {}, "their": {},
	"this": {}, "to": {}, "we": {}, "what": {}, "who": {}, "with": {},
}

func (h *HashEngine) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// EmbedBatch implements Engine.
func (h *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements Engine.
func (h *HashEngine) Dimensions() int { return h.dims }

// Name implements Engine.
func (h *HashEngine) Name() string { return fmt.Sprintf("hash:%d", h.dims) }
