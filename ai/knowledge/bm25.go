package knowledge

import (
	"math"
	"sort"
	"strings"
)

// BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index 基于空白分词的稀疏检索索引.
// 文档集合变更后需要整体重建.
type bm25Index struct {
	termFreqs []map[string]int
	docFreq   map[string]int
	docLens   []int
	avgDocLen float64
	numDocs   int
}

type scoredIndex struct {
	Index int
	Score float64
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// newBM25Index 从文档文本构建索引.
func newBM25Index(documents []string) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(documents)),
		docFreq:   make(map[string]int),
		docLens:   make([]int, len(documents)),
		numDocs:   len(documents),
	}

	totalLen := 0
	for i, doc := range documents {
		tokens := tokenize(doc)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		for term := range tf {
			idx.docFreq[term]++
		}
	}

	if idx.numDocs > 0 {
		idx.avgDocLen = float64(totalLen) / float64(idx.numDocs)
	}

	return idx
}

// search 返回得分最高的 k 个文档下标.
func (idx *bm25Index) search(query string, k int) []scoredIndex {
	if idx.numDocs == 0 || k <= 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make([]float64, idx.numDocs)
	for _, term := range queryTerms {
		df, ok := idx.docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(idx.numDocs)-float64(df)+0.5)/(float64(df)+0.5))

		for docID := 0; docID < idx.numDocs; docID++ {
			tf := idx.termFreqs[docID][term]
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLens[docID])/idx.avgDocLen
			scores[docID] += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + bm25K1*norm)
		}
	}

	results := make([]scoredIndex, 0, idx.numDocs)
	for i, s := range scores {
		if s > 0 {
			results = append(results, scoredIndex{Index: i, Score: s})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}
