package knowledge

import (
	"sort"

	"github.com/viant/vec/search"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

// candidate is an entry considered by the brute-force backends.
type candidate struct {
	id        string
	vector    []float32
	magnitude float32
	metadata  faq.Metadata
}

func newCandidate(id string, vector []float32, md faq.Metadata) candidate {
	return candidate{id: id, vector: vector, magnitude: search.Float32s(vector).Magnitude(), metadata: md}
}

// cosineSimilarity returns a score in [-1, 1]; zero vectors score 0.
func cosineSimilarity(query []float32, queryMag float32, c candidate) float64 {
	if queryMag == 0 || c.magnitude == 0 || len(query) != len(c.vector) {
		return 0
	}
	distance := search.Float32s(query).CosineDistanceWithMagnitude(c.vector, queryMag, c.magnitude)
	return float64(1 - distance)
}

type scored struct {
	candidate
	score float64
}

// rankTopK scores candidates against the query and keeps the best topK.
// Equal scores keep the candidates' original order.
func rankTopK(query []float32, candidates []candidate, topK int) []scored {
	queryMag := search.Float32s(query).Magnitude()
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, scored{candidate: c, score: cosineSimilarity(query, queryMag, c)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
