package retrieval

import (
	"sort"

	"github.com/yourorg/docrag/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// FusedResultInfo holds per-result method contribution metadata.
type FusedResultInfo struct {
	Methods   []string `json:"methods"`
	VecRank   int      `json:"vec_rank,omitempty"`   // 1-based, 0 = not present
	FTSRank   int      `json:"fts_rank,omitempty"`   // 1-based, 0 = not present
	GraphRank int      `json:"graph_rank,omitempty"` // 1-based, 0 = not present
}

// fusedEntry holds a candidate's accumulated RRF score and contribution info.
type fusedEntry struct {
	result store.RetrievalResult
	score  float64
	info   FusedResultInfo
}

// RRF fuses any number of independently-ranked result lists with per-list
// weights using Reciprocal Rank Fusion: score = sum(weight_i / (k + rank_i)).
// Ties are broken by first-seen order across the input lists (list order,
// then rank order within a list), so the same lists in the same order always
// give the same output; reordering the lists can reorder equal-scoring
// candidates.
func RRF(lists [][]store.RetrievalResult, weights []float64, k int, maxResults int) ([]store.RetrievalResult, map[int64]FusedResultInfo) {
	fused := make(map[int64]*fusedEntry)
	var order []int64 // first-seen chunk IDs, in encounter order

	for li, list := range lists {
		w := 1.0
		if li < len(weights) {
			w = weights[li]
		}
		for rank, r := range list {
			entry, ok := fused[r.ChunkID]
			if !ok {
				entry = &fusedEntry{result: r}
				fused[r.ChunkID] = entry
				order = append(order, r.ChunkID)
			}
			entry.score += w / float64(k+rank+1)
			entry.info.Methods = append(entry.info.Methods, r.ChunkType)
		}
	}

	entries := make([]*fusedEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, fused[id])
	}

	// sort.SliceStable preserves the first-seen order recorded above for
	// equal scores; sort.Slice would not, breaking determinism across runs.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.RetrievalResult, len(entries))
	infoMap := make(map[int64]FusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
		infoMap[e.result.ChunkID] = e.info
	}

	return results, infoMap
}

// fuseRRF implements Reciprocal Rank Fusion over the three fixed retrieval
// legs (vector, full-text, graph) used by HybridSearch. Each result set is
// ranked independently, then scores are combined using RRF with per-leg
// weights. It also returns per-result method contribution info keyed by
// ChunkID.
func fuseRRF(
	vecResults, ftsResults, graphResults []store.RetrievalResult,
	weightVec, weightFTS, weightGraph float64,
	maxResults int,
) ([]store.RetrievalResult, map[int64]FusedResultInfo) {
	fused := make(map[int64]*fusedEntry)
	var order []int64

	addLeg := func(results []store.RetrievalResult, weight float64, method string, setRank func(*FusedResultInfo, int)) {
		for rank, r := range results {
			entry, ok := fused[r.ChunkID]
			if !ok {
				entry = &fusedEntry{result: r}
				fused[r.ChunkID] = entry
				order = append(order, r.ChunkID)
			}
			entry.score += weight / float64(rrfK+rank+1)
			entry.info.Methods = append(entry.info.Methods, method)
			setRank(&entry.info, rank+1)
		}
	}

	addLeg(vecResults, weightVec, "vector", func(i *FusedResultInfo, r int) { i.VecRank = r })
	addLeg(ftsResults, weightFTS, "fts", func(i *FusedResultInfo, r int) { i.FTSRank = r })
	addLeg(graphResults, weightGraph, "graph", func(i *FusedResultInfo, r int) { i.GraphRank = r })

	entries := make([]*fusedEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, fused[id])
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.RetrievalResult, len(entries))
	infoMap := make(map[int64]FusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
		infoMap[e.result.ChunkID] = e.info
	}

	return results, infoMap
}
