package index

import (
	"sort"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// DefaultLimit is used when a search asks for a non-positive number of results.
const DefaultLimit = 5

// ChunkHit is one scored chunk together with its parent entry.
type ChunkHit struct {
	Entry *domain.KnowledgeEntry
	Chunk domain.KnowledgeChunk
	Score float64
}

// Aggregate collapses hits to one result per entry using the entry's best
// chunk score, drops inactive entries and entries outside category, and
// returns at most limit results ranked by descending similarity.
func Aggregate(hits []ChunkHit, category string, limit int) []domain.ScoredEntry {
	if limit <= 0 {
		limit = DefaultLimit
	}

	best := make(map[string]int, len(hits))
	results := make([]domain.ScoredEntry, 0, len(hits))
	for i := range hits {
		h := hits[i]
		if h.Entry == nil || !h.Entry.Active {
			continue
		}
		if category != "" && h.Entry.Category != category {
			continue
		}
		chunk := h.Chunk
		if idx, ok := best[h.Entry.ID]; ok {
			if h.Score > results[idx].Similarity {
				results[idx].Similarity = h.Score
				results[idx].BestChunk = &chunk
			}
			continue
		}
		best[h.Entry.ID] = len(results)
		results = append(results, domain.ScoredEntry{
			Entry:      h.Entry,
			Similarity: h.Score,
			BestChunk:  &chunk,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
