package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/satriahrh/suara/domain/entities"
)

// corpus is an immutable view of everything ingested so far. Ingestion builds
// a new corpus and swaps it in whole.
type corpus struct {
	chunks    []entities.Chunk
	documents []entities.Document
}

func (c *corpus) with(chunks []entities.Chunk, documents []entities.Document) *corpus {
	next := &corpus{}
	if c != nil {
		next.chunks = make([]entities.Chunk, 0, len(c.chunks)+len(chunks))
		next.chunks = append(next.chunks, c.chunks...)
		next.documents = make([]entities.Document, 0, len(c.documents)+len(documents))
		next.documents = append(next.documents, c.documents...)
	}
	next.chunks = append(next.chunks, chunks...)
	next.documents = append(next.documents, documents...)
	return next
}

// candidate is one context entry before the final cut.
type candidate struct {
	content    string
	metadata   map[string]any
	score      float64
	searchType entities.SearchType
}

// nearest returns the k chunks most similar to query.
func (c *corpus) nearest(query []float32, k int) []candidate {
	results := make([]candidate, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		results = append(results, candidate{
			content:    chunk.Text,
			metadata:   chunk.Metadata,
			score:      cosineSimilarity(query, chunk.Embedding),
			searchType: entities.SearchTypeVector,
		})
	}
	sortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// keywordMatches scores each document by the share of query words it contains.
func (c *corpus) keywordMatches(question string, k int) []candidate {
	words := tokenize(question)
	if len(words) == 0 {
		return nil
	}

	var results []candidate
	for _, doc := range c.documents {
		text := strings.ToLower(doc.Text)
		hits := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, candidate{
			content:    doc.Text,
			metadata:   doc.Metadata,
			score:      float64(hits) / float64(len(words)),
			searchType: entities.SearchTypeKeyword,
		})
	}
	sortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortByScore(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].score > cs[j].score })
}

// cosineSimilarity returns 0 for vectors of different length or zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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

// relevance maps a score onto a 0-100 percentage.
func relevance(score float64) int {
	switch {
	case math.IsNaN(score) || score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return int(math.Round(score * 100))
}
