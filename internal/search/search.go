// Package search provides full-text search over marshalled operator
// descriptors, backed by an in-memory Bleve index.
//
// Type names and parameter ids are split into words before indexing, so
// "bash" matches BashOperator and bash_command alike. Type matches are
// boosted over parameter matches, which are boosted over descriptions.
//
// Empty queries return the first N descriptors by type name. Non-empty
// queries are ranked by score with deterministic tie-breaking (score DESC,
// then type ASC).
//
// Index is safe for concurrent use. Loading the same descriptor list twice is
// a no-op: the Bleve index is rebuilt only when the list fingerprint changes.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/windmill-io/windmill/internal/metadata"
)

// Field boosts.
const (
	typeBoost        = 3.0
	parameterBoost   = 2.0
	descriptionBoost = 1.0
	moduleBoost      = 1.0
)

// Indexed field names.
const (
	fieldType        = "type"
	fieldModule      = "module"
	fieldParameters  = "parameters"
	fieldDescription = "description"
)

// DefaultLimit caps results when the caller passes a non-positive limit.
const DefaultLimit = 20

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("search index closed")

// Result is one search hit.
type Result struct {
	Type   string  `json:"type"`
	Module string  `json:"module,omitempty"`
	Score  float64 `json:"score"`
}

// Index searches descriptor dicts.
type Index struct {
	mu          sync.RWMutex
	idx         bleve.Index
	fingerprint string
	docs        map[string]Result // by document id
	order       []string          // document ids sorted by type
	closed      bool
}

// New creates an empty Index.
func New() *Index {
	return &Index{docs: make(map[string]Result)}
}

// Load replaces the indexed descriptors.
func (s *Index) Load(list []map[string]any) error {
	fp, err := fingerprint(list)
	if err != nil {
		return err
	}

	s.mu.RLock()
	same := s.idx != nil && s.fingerprint == fp
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if same {
		return nil
	}

	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}

	docs := make(map[string]Result, len(list))
	batch := idx.NewBatch()
	for i, dict := range list {
		d, err := metadata.FromDict(dict)
		if err != nil {
			_ = idx.Close()
			return fmt.Errorf("entry %d: %w", i, err)
		}
		id := documentID(d)
		if err := batch.Index(id, document(d)); err != nil {
			_ = idx.Close()
			return fmt.Errorf("failed to index %s: %w", id, err)
		}
		docs[id] = Result{Type: d.Type, Module: d.ModuleName()}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to index descriptors: %w", err)
	}

	order := make([]string, 0, len(docs))
	for id := range docs {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := docs[order[i]], docs[order[j]]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return order[i] < order[j]
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = idx.Close()
		return ErrClosed
	}
	if s.idx != nil {
		_ = s.idx.Close()
	}
	s.idx = idx
	s.fingerprint = fp
	s.docs = docs
	s.order = order
	return nil
}

// Search returns up to limit descriptors matching text.
func (s *Index) Search(text string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.idx == nil {
		return []Result{}, nil
	}

	words := splitWords(text)
	if len(words) == 0 {
		out := make([]Result, 0, min(limit, len(s.order)))
		for _, id := range s.order {
			if len(out) == limit {
				break
			}
			out = append(out, s.docs[id])
		}
		return out, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(strings.Join(words, " ")), len(s.docs), 0, false)
	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r, ok := s.docs[hit.ID]
		if !ok {
			continue
		}
		r.Score = hit.Score
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of indexed descriptors.
func (s *Index) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close releases the Bleve index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.idx == nil {
		return nil
	}
	return s.idx.Close()
}

func indexMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldType, text)
	doc.AddFieldMappingsAt(fieldModule, text)
	doc.AddFieldMappingsAt(fieldParameters, text)
	doc.AddFieldMappingsAt(fieldDescription, text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func buildQuery(text string) query.Query {
	field := func(name string, boost float64) query.Query {
		q := bleve.NewMatchQuery(text)
		q.SetField(name)
		q.SetBoost(boost)
		return q
	}
	return bleve.NewDisjunctionQuery(
		field(fieldType, typeBoost),
		field(fieldParameters, parameterBoost),
		field(fieldDescription, descriptionBoost),
		field(fieldModule, moduleBoost),
	)
}

func document(d *metadata.OperatorDescriptor) map[string]any {
	var params, descs []string
	for _, p := range d.Parameters {
		params = append(params, strings.Join(splitWords(p.ID), " "))
		if desc := p.DescriptionText(); desc != "" {
			descs = append(descs, desc)
		}
	}
	return map[string]any{
		fieldType:        strings.Join(splitWords(d.Type), " "),
		fieldModule:      strings.Join(splitWords(d.ModuleName()), " "),
		fieldParameters:  strings.Join(params, " "),
		fieldDescription: strings.Join(descs, "\n"),
	}
}

func documentID(d *metadata.OperatorDescriptor) string {
	if m := d.ModuleName(); m != "" {
		return m + "." + d.Type
	}
	return d.Type
}

// splitWords lowercases s and splits it at non-alphanumerics and camel case
// boundaries: "S3KeySensor" -> [s3 key sensor], "bash_command" -> [bash command].
func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// fingerprint hashes the canonical JSON of list.
func fingerprint(list []map[string]any) (string, error) {
	if list == nil {
		list = []map[string]any{}
	}
	data, err := metadata.Serialize(list)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
