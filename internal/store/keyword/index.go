// Package keyword implements the BM25 inverted-index store. Every indexed
// entry carries its chunk's namespace as first-class metadata copied at
// index-build time; a missing namespace aborts the whole batch before any
// write, so a partial index is never committed.
package keyword

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/text"
)

// Standard BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type entry struct {
	Namespace        string   `msgpack:"namespace"`
	DocumentID       string   `msgpack:"document_id"`
	Text             string   `msgpack:"text"`
	PrimarySectionID string   `msgpack:"primary_section_id"`
	SectionIDs       []string `msgpack:"section_ids"`
	SectionHeading   string   `msgpack:"section_heading"`
	TokenCount       int      `msgpack:"token_count"`
}

// Index is an in-process BM25 index over chunks.
type Index struct {
	mu sync.RWMutex

	// entries holds typed chunk metadata per chunk ID.
	entries map[string]entry
	// inverted maps term -> chunk ID -> term frequency.
	inverted map[string]map[string]int
	// docLengths maps chunk ID -> token count.
	docLengths     map[string]int
	totalDocLength int64
	docCount       int

	logger *logrus.Logger
}

func NewIndex(logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.New()
	}
	return &Index{
		entries:    make(map[string]entry),
		inverted:   make(map[string]map[string]int),
		docLengths: make(map[string]int),
		logger:     logger,
	}
}

// IndexChunks adds or replaces a batch of chunks. The batch is validated in
// full before the first write: a chunk with a missing namespace (or identity)
// is a schema violation and nothing from the batch is committed.
func (idx *Index) IndexChunks(_ context.Context, chunks []model.Chunk) error {
	for _, c := range chunks {
		if c.ID == "" || c.DocumentID == "" {
			return model.SchemaViolationf("keyword index entry missing identity fields (id=%q document=%q)", c.ID, c.DocumentID)
		}
		if c.Namespace == "" {
			return model.SchemaViolationf("keyword index entry %s has no namespace", c.ID)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		idx.removeLocked(c.ID)

		tokens := text.Tokenize(c.Text)
		if len(tokens) == 0 {
			continue
		}

		idx.entries[c.ID] = entry{
			Namespace:        c.Namespace,
			DocumentID:       c.DocumentID,
			Text:             c.Text,
			PrimarySectionID: c.PrimarySectionID,
			SectionIDs:       c.SectionIDs,
			SectionHeading:   c.SectionHeading,
			TokenCount:       c.TokenCount,
		}
		idx.docLengths[c.ID] = len(tokens)
		idx.docCount++
		idx.totalDocLength += int64(len(tokens))

		termFreq := make(map[string]int)
		for _, tok := range tokens {
			termFreq[tok]++
		}
		for term, freq := range termFreq {
			if idx.inverted[term] == nil {
				idx.inverted[term] = make(map[string]int)
			}
			idx.inverted[term][c.ID] = freq
		}
	}

	idx.logger.WithField("count", len(chunks)).Debug("Chunks indexed in keyword store")
	return nil
}

// Remove deletes a chunk from the index.
func (idx *Index) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

func (idx *Index) removeLocked(chunkID string) {
	if _, ok := idx.entries[chunkID]; !ok {
		return
	}

	tokens := text.Tokenize(idx.entries[chunkID].Text)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if docs := idx.inverted[tok]; docs != nil {
			delete(docs, chunkID)
			if len(docs) == 0 {
				delete(idx.inverted, tok)
			}
		}
	}

	idx.totalDocLength -= int64(idx.docLengths[chunkID])
	delete(idx.docLengths, chunkID)
	delete(idx.entries, chunkID)
	idx.docCount--
}

// Search scores chunks in the namespace with BM25 and returns the top k,
// optionally restricted to a section. Namespace filtering happens on the
// stored metadata, never on a default.
func (idx *Index) Search(_ context.Context, query, namespace, sectionID string, topK int) ([]model.ScoredChunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.docCount == 0 {
		return nil, nil
	}

	queryTerms := text.Tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	avgDocLength := float64(idx.totalDocLength) / float64(idx.docCount)
	scores := make(map[string]float64)

	for _, term := range queryTerms {
		docs, ok := idx.inverted[term]
		if !ok {
			continue
		}
		idf := idx.idfLocked(term)
		for chunkID, termFreq := range docs {
			e := idx.entries[chunkID]
			if e.Namespace != namespace {
				continue
			}
			if sectionID != "" && !entryInSection(e, sectionID) {
				continue
			}
			docLen := float64(idx.docLengths[chunkID])
			tf := float64(termFreq)
			numerator := tf * (bm25K1 + 1)
			denominator := tf + bm25K1*(1-bm25B+bm25B*(docLen/avgDocLength))
			scores[chunkID] += idf * (numerator / denominator)
		}
	}

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, 0, len(scores))
	for id, score := range scores {
		results = append(results, scored{id: id, score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	out := make([]model.ScoredChunk, len(results))
	for i, r := range results {
		out[i] = model.ScoredChunk{Chunk: idx.chunkLocked(r.id), Score: r.score}
	}
	return out, nil
}

// idfLocked uses the Lucene BM25 IDF variant, floored at zero.
func (idx *Index) idfLocked(term string) float64 {
	df := float64(len(idx.inverted[term]))
	n := float64(idx.docCount)
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	if idf < 0 {
		return 0
	}
	return idf
}

func entryInSection(e entry, sectionID string) bool {
	if e.PrimarySectionID == sectionID {
		return true
	}
	for _, sid := range e.SectionIDs {
		if sid == sectionID {
			return true
		}
	}
	return false
}

func (idx *Index) chunkLocked(id string) model.Chunk {
	e := idx.entries[id]
	return model.Chunk{
		ID:               id,
		DocumentID:       e.DocumentID,
		Namespace:        e.Namespace,
		Text:             e.Text,
		PrimarySectionID: e.PrimarySectionID,
		SectionIDs:       e.SectionIDs,
		SectionHeading:   e.SectionHeading,
		TokenCount:       e.TokenCount,
	}
}

// CountChunks returns the number of indexed chunks for a document.
func (idx *Index) CountChunks(_ context.Context, documentID, namespace string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := 0
	for _, e := range idx.entries {
		if e.DocumentID == documentID && e.Namespace == namespace {
			count++
		}
	}
	return count, nil
}

// Namespaces returns the stored namespace tag for each requested chunk.
// Chunks absent from the index are omitted.
func (idx *Index) Namespaces(_ context.Context, chunkIDs []string) (map[string]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]string, len(chunkIDs))
	for _, id := range chunkIDs {
		if e, ok := idx.entries[id]; ok {
			out[id] = e.Namespace
		}
	}
	return out, nil
}

// Count returns the total number of indexed chunks.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docCount
}
