package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hubenschmidt/go-retrieve/core"
)

type entry struct {
	seq       uint64
	embedding []float64
	doc       Document
}

// MemoryStore is an in-memory vector store for development and testing.
// Search is an exact linear scan.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
	log     *slog.Logger
}

// NewMemoryStore creates a new in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithLogger(nil)
}

// NewMemoryStoreWithLogger is NewMemoryStore with a logger for lifecycle events.
func NewMemoryStoreWithLogger(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		log:     componentLogger(logger, "vector.memory"),
	}
}

// Add stores documents, replacing existing ones by ID in place.
func (s *MemoryStore) Add(ctx context.Context, docs []Document, embeddings [][]float64) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, core.SizeMismatch("documents", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if err := checkEmbeddings(embeddings); err != nil {
		return nil, err
	}

	records := make([]Record, len(docs))
	for i, doc := range docs {
		metadata, err := normalizeMetadata(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		doc.ID = resolveID(doc.ID)
		doc.Metadata = metadata
		records[i] = Record{ID: doc.ID, Embedding: embeddings[i], Document: doc}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		s.put(r.ID, r.Embedding, r.Document)
	}
	return ids, nil
}

// put expects metadata already normalized and owned by the store.
func (s *MemoryStore) put(id string, embedding []float64, doc Document) {
	doc.ID = id
	if e, ok := s.entries[id]; ok {
		e.embedding = cloneEmbedding(embedding)
		e.doc = doc
		return
	}
	s.nextSeq++
	s.entries[id] = &entry{seq: s.nextSeq, embedding: cloneEmbedding(embedding), doc: doc}
}

// Search finds documents similar to the given embedding using a brute-force scan.
func (s *MemoryStore) Search(ctx context.Context, embedding []float64, topK int, opts SearchOptions) ([]SearchResult, error) {
	if topK <= 0 || !validFilter(opts.Filter) {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return rankCandidates(s.computeScores(embedding, opts), topK), nil
}

func (s *MemoryStore) computeScores(embedding []float64, opts SearchOptions) []candidate {
	results := make([]candidate, 0, len(s.entries))
	for _, e := range s.entries {
		if !matchesFilter(e.doc.Metadata, opts.Filter) {
			continue
		}
		sc, ok := score(opts.Metric, embedding, e.embedding)
		if !ok {
			continue
		}
		results = append(results, candidate{order: e.seq, result: SearchResult{Document: copyDocument(e.doc), Score: sc}})
	}
	return results
}

// Delete removes documents by ID.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// Serialize captures every entry in insertion order.
func (s *MemoryStore) Serialize(ctx context.Context) (string, error) {
	return EncodeSnapshot(s.Records())
}

// Records returns a copy of every entry in insertion order.
func (s *MemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	records := make([]Record, len(ordered))
	for i, e := range ordered {
		records[i] = Record{ID: e.doc.ID, Embedding: cloneEmbedding(e.embedding), Document: copyDocument(e.doc)}
	}
	return records
}

// Deserialize replaces all entries with the token's records. The token is
// decoded before the store is touched, so a bad token leaves it unchanged.
func (s *MemoryStore) Deserialize(ctx context.Context, token string) error {
	records, err := DecodeSnapshot(token)
	if err != nil {
		return err
	}
	for i := range records {
		if len(records[i].Document.Metadata) == 0 {
			records[i].Document.Metadata = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry, len(records))
	s.nextSeq = 0
	for _, r := range records {
		s.put(r.ID, r.Embedding, r.Document)
	}
	s.log.Debug("store replaced from snapshot", slog.Int("records", len(records)))
	return nil
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of documents in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)

type candidate struct {
	order  uint64
	result SearchResult
}

// rankCandidates orders by descending score, then by encounter order, and
// truncates to topK.
func rankCandidates(cands []candidate, topK int) []SearchResult {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].result.Score != cands[j].result.Score {
			return cands[i].result.Score > cands[j].result.Score
		}
		return cands[i].order < cands[j].order
	})

	if len(cands) > topK {
		cands = cands[:topK]
	}

	results := make([]SearchResult, len(cands))
	for i, c := range cands {
		results[i] = c.result
	}
	return results
}

func copyDocument(d Document) Document {
	d.Metadata = cloneMetadata(d.Metadata)
	return d
}
