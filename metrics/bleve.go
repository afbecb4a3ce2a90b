package metrics

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	perrors "github.com/vinayprograms/pulse/errors"
)

// BleveIndex is a full-text index over cycle history. Reasoning, selected
// check ids, status and errors are searchable.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// cycleDocument is the indexed form of a Cycle. Raw holds the full record
// so hits decode without a second lookup.
type cycleDocument struct {
	Reasoning string   `json:"reasoning"`
	Selected  []string `json:"selected"`
	Status    string   `json:"status"`
	Error     string   `json:"error"`
	Timestamp string   `json:"timestamp"`
	Raw       string   `json:"raw"`
}

// OpenBleveIndex opens the index at path, creating it if missing.
// An empty path gives an in-memory index.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(buildIndexMapping())
	default:
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			index, err = bleve.New(path, buildIndexMapping())
		} else {
			index, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "open cycle index")
	}
	return &BleveIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	keyword := bleve.NewKeywordFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true

	doc.AddFieldMappingsAt("reasoning", text)
	doc.AddFieldMappingsAt("error", text)
	doc.AddFieldMappingsAt("selected", keyword)
	doc.AddFieldMappingsAt("status", keyword)
	doc.AddFieldMappingsAt("timestamp", keyword)
	doc.AddFieldMappingsAt("raw", stored)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

func (b *BleveIndex) RecordCycle(_ context.Context, c Cycle) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return recordFailed(err, c, "encode cycle")
	}
	doc := cycleDocument{
		Reasoning: c.Reasoning,
		Selected:  c.Selected,
		Status:    c.Status,
		Error:     c.Error,
		Timestamp: c.Timestamp.UTC().Format(tsLayout),
		Raw:       string(raw),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Index(c.ID, doc); err != nil {
		return recordFailed(err, c, "index cycle")
	}
	return nil
}

// Search runs a bleve query-string query, e.g. "meeting", "status:error" or
// "selected:upcoming_event". Results are ordered by relevance.
func (b *BleveIndex) Search(_ context.Context, queryText string, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(queryText))
	req.Size = limit
	req.Fields = []string{"raw"}

	b.mu.RLock()
	res, err := b.index.Search(req)
	b.mu.RUnlock()
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "search cycles",
			perrors.WithMetadata("query", queryText))
	}

	out := make([]Cycle, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, ok := hit.Fields["raw"].(string)
		if !ok {
			continue
		}
		var c Cycle
		if json.Unmarshal([]byte(raw), &c) == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// Count returns the number of indexed cycles.
func (b *BleveIndex) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
