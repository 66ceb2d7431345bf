package retrieve

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/docquery/docquery/internal/store"
)

// BM25 saturation constants, the textbook defaults.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var bm25TokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// selectBM25 scores the query lexically against every persisted chunk. The
// index is rebuilt from a full store scan on each call; at this corpus scale
// that costs less than maintaining an incremental index. Known scaling
// limit, not a bug.
func (r *Retriever) selectBM25(ctx context.Context, query string, k int) ([]Hit, error) {
	chunks, err := r.store.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	idx := buildBM25Index(chunks)
	queryTerms := bm25Tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	var results []scored
	for pos := range chunks {
		if s := idx.score(queryTerms, pos); s > 0 {
			results = append(results, scored{pos: pos, score: s})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Chunk: chunks[results[i].pos], Score: results[i].score, Kind: ScoreBM25}
	}
	return hits, nil
}

type bm25Index struct {
	termFreqs []map[string]int // per document
	docFreq   map[string]int
	docLens   []int
	avgDocLen float64
}

func buildBM25Index(chunks []store.Chunk) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(chunks)),
		docFreq:   make(map[string]int),
		docLens:   make([]int, len(chunks)),
	}
	total := 0
	for i, c := range chunks {
		terms := bm25Tokenize(c.Text)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			idx.docFreq[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(terms)
		total += len(terms)
	}
	if len(chunks) > 0 {
		idx.avgDocLen = float64(total) / float64(len(chunks))
	}
	return idx
}

func (idx *bm25Index) score(queryTerms []string, doc int) float64 {
	if idx.avgDocLen == 0 {
		return 0
	}
	n := float64(len(idx.termFreqs))
	lenNorm := bm25K1 * (1 - bm25B + bm25B*float64(idx.docLens[doc])/idx.avgDocLen)

	var total float64
	for _, term := range queryTerms {
		tf := float64(idx.termFreqs[doc][term])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		total += idf * tf * (bm25K1 + 1) / (tf + lenNorm)
	}
	return total
}

func bm25Tokenize(text string) []string {
	return bm25TokenPattern.FindAllString(strings.ToLower(text), -1)
}
