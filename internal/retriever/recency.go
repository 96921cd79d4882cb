package retriever

import (
	"container/heap"
	"math"
	"strings"

	"github.com/ternarybob/memorybank/internal/storage"
)

// RecencyRetriever selects the most recent, highest-quality chunks
// across every session and artifact.
type RecencyRetriever struct {
	MinQuality    float64
	MinLength     int
	MaxExcerpts   int
	HalfLifeDays  float64
	NearThreshold float64
}

// DefaultRecencyRetriever returns the spec-mandated defaults.
func DefaultRecencyRetriever() RecencyRetriever {
	return RecencyRetriever{
		MinQuality:  0.30,
		MinLength:   30,
		MaxExcerpts: 200,
	}
}

type heapItem struct {
	chunk   storage.Chunk
	qEff    float64
	counter int
}

// minHeap keeps the MaxExcerpts highest (qEff, ts_end) items by evicting
// the smallest when it overflows.
type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].qEff != h[j].qEff {
		return h[i].qEff < h[j].qEff
	}
	if h[i].chunk.TsEnd != h[j].chunk.TsEnd {
		return h[i].chunk.TsEnd < h[j].chunk.TsEnd
	}
	return h[i].counter < h[j].counter
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Retrieve streams every chunk, drops short/low-quality ones, keeps the
// top MaxExcerpts by effective quality, sorts by ts_end descending, and
// dedups the result.
func (r RecencyRetriever) Retrieve(s *storage.Storage, nowSeconds float64) ([]storage.Chunk, error) {
	chunks, err := s.AllChunks()
	if err != nil {
		return nil, err
	}

	h := &minHeap{}
	heap.Init(h)
	counter := 0

	for _, c := range chunks {
		if len(strings.TrimSpace(c.Text)) < r.MinLength {
			continue
		}

		qEff := c.QualityScore
		if c.ArtifactType == "" && r.HalfLifeDays > 0 {
			ageDays := (nowSeconds - c.TsEnd) / 86400.0
			if ageDays < 0 {
				ageDays = 0
			}
			qEff = c.QualityScore * math.Exp(-ageDays*math.Ln2/r.HalfLifeDays)
		}
		if qEff < r.MinQuality {
			continue
		}

		heap.Push(h, heapItem{chunk: c, qEff: qEff, counter: counter})
		counter++
		if h.Len() > r.MaxExcerpts {
			heap.Pop(h)
		}
	}

	selected := make([]storage.Chunk, 0, h.Len())
	for _, item := range *h {
		selected = append(selected, item.chunk)
	}
	sortByTsEndDescending(selected)

	return Dedup(selected, r.NearThreshold), nil
}

func sortByTsEndDescending(chunks []storage.Chunk) {
	for i := 1; i < len(chunks); i++ {
		j := i
		for j > 0 && chunks[j-1].TsEnd < chunks[j].TsEnd {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
			j--
		}
	}
}
