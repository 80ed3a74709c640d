// File: internal/memory/recall.go
package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/store"
)

// recallScanLimit caps how many stored rows one recall considers. Similarity
// is ranked in-process, so the candidate set stays bounded.
const recallScanLimit = 200

// Recaller stores embedded conversation snippets per thread and surfaces the
// most similar ones for a query. Recall degrades to empty on any failure; the
// run never blocks on memory.
type Recaller struct {
	pool     store.DBPool
	embedder Embedder
	log      *zap.Logger
}

func NewRecaller(pool store.DBPool, embedder Embedder, logger *zap.Logger) *Recaller {
	return &Recaller{
		pool:     pool,
		embedder: embedder,
		log:      logger.Named("memory"),
	}
}

// EnsureSchema creates the memories table. Idempotent.
func (r *Recaller) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			snippet TEXT NOT NULL,
			embedding FLOAT4[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// Remember embeds and stores one snippet for the thread.
func (r *Recaller) Remember(ctx context.Context, threadID, text string) error {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO memories (id, thread_id, snippet, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`, uuid.NewString(), threadID, text, vector, time.Now().UTC())
	return err
}

// Recall returns up to limit stored snippets ranked by cosine similarity to
// the query. Any failure degrades to an empty result.
func (r *Recaller) Recall(ctx context.Context, threadID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Warn("Recall degraded: query embedding failed", zap.Error(err))
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT snippet, embedding
		FROM memories
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, threadID, recallScanLimit)
	if err != nil {
		r.log.Warn("Recall degraded: memory query failed", zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	type scored struct {
		snippet string
		score   float64
	}
	var candidates []scored
	for rows.Next() {
		var snippet string
		var vector []float32
		if err := rows.Scan(&snippet, &vector); err != nil {
			r.log.Warn("Recall degraded: row scan failed", zap.Error(err))
			return nil, nil
		}
		candidates = append(candidates, scored{
			snippet: snippet,
			score:   cosineSimilarity(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		r.log.Warn("Recall degraded: row iteration failed", zap.Error(err))
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	snippets := make([]string, len(candidates))
	for i, c := range candidates {
		snippets[i] = c.snippet
	}
	return snippets, nil
}

func (r *Recaller) Close() error {
	return r.embedder.Close()
}

// Noop satisfies the recall interface when memory is disabled.
type Noop struct{}

func (Noop) Recall(ctx context.Context, threadID, query string, limit int) ([]string, error) {
	return nil, nil
}

func (Noop) Remember(ctx context.Context, threadID, text string) error {
	return nil
}

var (
	_ schemas.MemoryRecall = (*Recaller)(nil)
	_ schemas.MemoryRecall = Noop{}
)

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
