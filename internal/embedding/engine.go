// Package embedding provides vector embeddings for pattern retrieval.
// Supports Google GenAI (cloud) and a local feature-hashing engine.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Provider names.
const (
	ProviderGenAI = "genai"
	ProviderHash  = "hash"
	ProviderNone  = "none"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// Lexical is implemented by engines whose similarity comes only from shared
// words. A hit from such an engine counts only when the query and the
// pattern share a content word; anything else is a bucket collision.
type Lexical interface {
	ContentWords(text string) []string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai", "hash" or "none".
	Provider string `mapstructure:"provider"`

	GenAIAPIKey string `mapstructure:"api_key"`
	GenAIModel  string `mapstructure:"model"` // Default: "gemini-embedding-001"
	TaskType    string `mapstructure:"task_type"`

	// Dimensions of the hash engine.
	Dimensions int `mapstructure:"dimensions"`
}

// DefaultConfig returns the offline default.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderHash,
		GenAIModel: DefaultGenAIModel,
		TaskType:   "SEMANTIC_SIMILARITY",
		Dimensions: DefaultHashDimensions,
	}
}

// NewEngine creates an engine for cfg. Provider "none" returns a nil engine
// and no error: the vector path is simply off.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderHash:
		return NewHashEngine(cfg.Dimensions), nil
	case ProviderGenAI:
		e, err := NewGenAIEngine(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'genai', 'hash' or 'none')", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched lengths are an error; a zero vector scores 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, am, bm float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		am += float64(a[i]) * float64(a[i])
		bm += float64(b[i]) * float64(b[i])
	}
	if am == 0 || bm == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(am) * math.Sqrt(bm)), nil
}

// Add returns a + scale*b. Mismatched lengths return a copy of a.
func Add(a, b []float32, scale float64) []float32 {
	out := append([]float32(nil), a...)
	if len(a) != len(b) {
		return out
	}
	for i := range out {
		out[i] += float32(scale * float64(b[i]))
	}
	return out
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
