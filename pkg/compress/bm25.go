package compress

import "math"

// BM25 parameters; standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Scorer scores sentences against a query using per-chunk document
// statistics: each sentence is a document, the chunk is the corpus.
type bm25Scorer struct {
	queryTerms []string
	docs       [][]string
	docFreq    map[string]int
	avgLen     float64
}

// newBM25Scorer builds a scorer for one chunk's sentences.
func newBM25Scorer(query string, sentences []string) *bm25Scorer {
	s := &bm25Scorer{
		queryTerms: Tokenize(query),
		docs:       make([][]string, len(sentences)),
		docFreq:    make(map[string]int),
	}

	totalLen := 0
	for i, sentence := range sentences {
		terms := Tokenize(sentence)
		s.docs[i] = terms
		totalLen += len(terms)

		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				s.docFreq[t]++
			}
		}
	}
	if len(sentences) > 0 {
		s.avgLen = float64(totalLen) / float64(len(sentences))
	}
	return s
}

// score returns the BM25 score of sentence i against the query.
func (s *bm25Scorer) score(i int) float64 {
	doc := s.docs[i]
	if len(doc) == 0 || s.avgLen == 0 {
		return 0
	}

	termFreq := make(map[string]int, len(doc))
	for _, t := range doc {
		termFreq[t]++
	}

	n := float64(len(s.docs))
	docLen := float64(len(doc))
	total := 0.0
	for _, q := range s.queryTerms {
		tf := float64(termFreq[q])
		if tf == 0 {
			continue
		}
		df := float64(s.docFreq[q])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		total += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/s.avgLen))
	}
	return total
}
