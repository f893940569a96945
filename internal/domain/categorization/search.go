package categorization

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
)

const (
	docKindRule       = "rule"
	docKindCorrection = "correction"
)

// SearchDocument is a stored rule or a recorded correction.
type SearchDocument struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`     // "rule" or "correction"
	Text     string  `json:"text"`     // rule pattern or correction note
	Raw      string  `json:"raw"`      // lowercased Text for substring queries
	Category string  `json:"category"` // category the text points to
	Field    string  `json:"field"`    // rule field; empty for corrections
	Priority float64 `json:"priority"`
}

// SearchHit is a document with its relevance score.
type SearchHit struct {
	Document SearchDocument `json:"document"`
	Score    float64        `json:"score"`
}

// SearchIndex answers "which rule or correction already covers this text" for
// administrators curating rules. Thai text has no word breaks, so every query also
// runs as a substring wildcard over the raw text.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string // empty for in-memory
}

// NewSearchIndex opens the index at path, creating it on first use. An empty path
// keeps the index in memory.
func NewSearchIndex(path string) (*SearchIndex, error) {
	idx, err := openIndex(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	return &SearchIndex{index: idx, path: path}, nil
}

func openIndex(path string) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(searchMapping())
	}
	idx, err := bleve.Open(path)
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return idx, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return bleve.New(path, searchMapping())
}

// searchMapping analyzes the rule text with the simple analyzer and keeps every
// other field as a single exact term.
func searchMapping() mapping.IndexMapping {
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	words := bleve.NewTextFieldMapping()
	words.Analyzer = simple.Name

	doc := bleve.NewDocumentMapping()
	for _, f := range []string{"kind", "raw", "category", "field"} {
		doc.AddFieldMappingsAt(f, exact)
	}
	doc.AddFieldMappingsAt("text", words)
	doc.AddFieldMappingsAt("priority", bleve.NewNumericFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = simple.Name
	return m
}

// Reindex replaces the index contents with rules and corrections.
func (si *SearchIndex) Reindex(rules []CategoryRule, recent []corrections.Correction) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	if err := si.clear(); err != nil {
		return err
	}

	batch := si.index.NewBatch()
	for _, rule := range rules {
		doc := SearchDocument{
			ID:       docKindRule + "_" + rule.ID.String(),
			Kind:     docKindRule,
			Text:     rule.Pattern,
			Raw:      strings.ToLower(rule.Pattern),
			Category: rule.CategoryName,
			Field:    string(rule.Field),
			Priority: float64(rule.Priority),
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index rule %s: %w", rule.ID, err)
		}
	}
	for _, c := range recent {
		doc := SearchDocument{
			ID:       docKindCorrection + "_" + c.ID.String(),
			Kind:     docKindCorrection,
			Text:     c.Note,
			Raw:      strings.ToLower(c.Note),
			Category: c.UserCategory,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index correction %s: %w", c.ID, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search matches q as fuzzy terms or as a substring of the indexed text.
func (si *SearchIndex) Search(q string, limit int) ([]SearchHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(q)
	match.SetField("text")
	match.SetFuzziness(1)

	substring := bleve.NewWildcardQuery("*" + stripWildcards(strings.ToLower(q)) + "*")
	substring.SetField("raw")

	return si.run(bleve.NewDisjunctionQuery(match, substring), limit)
}

// SearchByCategory lists the documents pointing at category.
func (si *SearchIndex) SearchByCategory(category string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 100
	}
	term := bleve.NewTermQuery(category)
	term.SetField("category")
	return si.run(term, limit)
}

func (si *SearchIndex) run(q query.Query, limit int) ([]SearchHit, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertHits(res), nil
}

func convertHits(res *bleve.SearchResult) []SearchHit {
	hits := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		str := func(name string) string {
			v, _ := hit.Fields[name].(string)
			return v
		}
		priority, _ := hit.Fields["priority"].(float64)
		hits = append(hits, SearchHit{
			Document: SearchDocument{
				ID:       hit.ID,
				Kind:     str("kind"),
				Text:     str("text"),
				Raw:      str("raw"),
				Category: str("category"),
				Field:    str("field"),
				Priority: priority,
			},
			Score: hit.Score,
		})
	}
	return hits
}

// clear removes every document. Callers hold the write lock.
func (si *SearchIndex) clear() error {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 10000

	res, err := si.index.Search(req)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	batch := si.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()
	return si.index.DocCount()
}

func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()
	if si.index == nil {
		return nil
	}
	return si.index.Close()
}

// stripWildcards drops the wildcard operators; bleve has no escape for them.
func stripWildcards(s string) string {
	return strings.NewReplacer("*", "", "?", "").Replace(s)
}
