package rag

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/vector"
	"github.com/relaynet/chatcore/pkg/logger"
	"github.com/relaynet/chatcore/pkg/utils"
)

// EmbedCache caches query embeddings keyed by text hash. Optional; a nil
// cache disables it.
type EmbedCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// RetrievalResult is transient; it lives only for the request that
// produced it.
type RetrievalResult struct {
	Query   string
	Matches []vector.Match
}

type RetrieverConfig struct {
	TopK            int
	MaxContextChars int
	CacheTTL        time.Duration
}

type Retriever struct {
	store    vector.Store
	embedder Embedder
	cache    EmbedCache

	topK            int
	maxContextChars int
	cacheTTL        time.Duration
}

func NewRetriever(store vector.Store, embedder Embedder, cache EmbedCache, cfg RetrieverConfig) *Retriever {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = 6000
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	return &Retriever{
		store:           store,
		embedder:        embedder,
		cache:           cache,
		topK:            cfg.TopK,
		maxContextChars: cfg.MaxContextChars,
		cacheTTL:        cfg.CacheTTL,
	}
}

// Query embeds the text and runs a similarity search. Provider or backend
// failure degrades to an empty result: the caller proceeds without context
// rather than failing the reply.
func (r *Retriever) Query(ctx context.Context, text string, topK int) RetrievalResult {
	if topK <= 0 {
		topK = r.topK
	}
	result := RetrievalResult{Query: text}
	metrics.RetrievalQueries.Inc()

	embedding, err := r.embedQuery(ctx, text)
	if err != nil {
		logger.Warn("Query embedding unavailable, returning empty retrieval",
			zap.String("query", text),
			zap.Error(err),
		)
		metrics.RetrievalResultsCount.Observe(0)
		return result
	}

	matches, err := r.store.Search(ctx, embedding, topK)
	if err != nil {
		logger.Warn("Vector search unavailable, returning empty retrieval",
			zap.String("query", text),
			zap.Error(err),
		)
		metrics.RetrievalResultsCount.Observe(0)
		return result
	}

	result.Matches = matches
	metrics.RetrievalResultsCount.Observe(float64(len(matches)))
	return result
}

const contextSeparator = "\n\n"

// BuildContext concatenates chunk texts in descending score order,
// truncated to the configured maximum total length. Separators count
// against the budget; truncation never splits a rune.
func (r *Retriever) BuildContext(result RetrievalResult) string {
	if len(result.Matches) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, match := range result.Matches {
		text := strings.TrimSpace(match.Text)
		if text == "" {
			continue
		}

		remaining := r.maxContextChars - builder.Len()
		if builder.Len() > 0 {
			remaining -= len(contextSeparator)
		}
		if remaining <= 0 {
			break
		}
		if len(text) > remaining {
			text = truncateAtRune(text, remaining)
			if text == "" {
				break
			}
		}

		if builder.Len() > 0 {
			builder.WriteString(contextSeparator)
		}
		builder.WriteString(text)
	}

	return builder.String()
}

// truncateAtRune cuts text to at most max bytes, backing up so the cut
// never lands inside a multi-byte rune.
func truncateAtRune(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Context is the pipeline-facing shorthand: query then assemble.
func (r *Retriever) Context(ctx context.Context, query string) string {
	return r.BuildContext(r.Query(ctx, query, r.topK))
}

func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	hash := utils.HashString(text)

	if r.cache != nil {
		embedding, hit, err := r.cache.GetEmbedding(ctx, hash)
		if err != nil {
			logger.Debug("Embedding cache read failed", zap.Error(err))
		} else if hit {
			metrics.EmbeddingCacheHits.Inc()
			return embedding, nil
		}
		metrics.EmbeddingCacheMisses.Inc()
	}

	embedding, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetEmbedding(ctx, hash, embedding, r.cacheTTL); err != nil {
			logger.Debug("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}
