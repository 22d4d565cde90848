package store

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	bolt "go.etcd.io/bbolt"
)

func openOrCreateSearchIndex(path string) (bleve.Index, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return createSearchIndex(path)
	}

	index, err := bleve.Open(path)
	if err == nil {
		return index, nil
	}

	log.WithError(err).WithField("path", path).Warn("search index corrupted, rebuilding")
	if removeErr := os.RemoveAll(path); removeErr != nil {
		return nil, fmt.Errorf("failed to remove corrupted search index: %w (original error: %v)", removeErr, err)
	}
	return createSearchIndex(path)
}

func createSearchIndex(path string) (bleve.Index, error) {
	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(path, indexMapping)
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create standard analyzer: %w", err)
	}

	findingMapping := bleve.NewDocumentMapping()

	messageField := bleve.NewTextFieldMapping()
	messageField.Analyzer = "standard_lower"
	messageField.Store = true
	findingMapping.AddFieldMappingsAt("message", messageField)

	for _, name := range []string{"ruleKey", "file", "category", "scope", "serverKey"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		findingMapping.AddFieldMappingsAt(name, f)
	}

	indexMapping.AddDocumentMapping("finding", findingMapping)
	indexMapping.DefaultMapping = findingMapping
	return indexMapping, nil
}

func recordToSearchDoc(r *Record) map[string]interface{} {
	return map[string]interface{}{
		"message":   r.Message,
		"ruleKey":   r.RuleKey,
		"file":      r.FilePath,
		"category":  string(r.Category),
		"scope":     r.Scope,
		"serverKey": r.ServerKey,
	}
}

// ensureSearchMapping rebuilds the search index from bbolt when the mapping
// stored with the database differs from the current one.
func (s *BoltKnownFindingsStore) ensureSearchMapping() error {
	m, err := buildIndexMapping()
	if err != nil {
		return err
	}
	hash := MappingHash(m)

	stored, err := getMeta(s.db, metaMappingHash)
	if err != nil && err != ErrNotFound {
		return err
	}
	if hash == stored {
		return nil
	}
	if stored != "" {
		log.Info("search mapping changed, rebuilding index")
	}

	if err := s.recreateSearchIndex(); err != nil {
		return err
	}

	batch := s.search.NewBatch()
	err = s.db.View(func(tx *bolt.Tx) error {
		return walkRecords(tx.Bucket(BucketKnownFindings), func(_ location, rec *Record) error {
			return batch.Index(docID(rec.Scope, rec.ID.String()), recordToSearchDoc(rec))
		})
	})
	if err != nil {
		return err
	}
	if err := s.search.Batch(batch); err != nil {
		return err
	}
	return setMeta(s.db, metaMappingHash, hash)
}

// recreateSearchIndex drops the search index and creates an empty one.
func (s *BoltKnownFindingsStore) recreateSearchIndex() error {
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			return fmt.Errorf("failed to close search index: %w", err)
		}
	}
	if err := os.RemoveAll(s.searchPath); err != nil {
		if idx, reopenErr := bleve.Open(s.searchPath); reopenErr == nil {
			s.search = idx
		} else {
			s.search = nil
		}
		return fmt.Errorf("failed to remove search index: %w", err)
	}

	index, err := createSearchIndex(s.searchPath)
	if err != nil {
		s.search = nil
		return fmt.Errorf("failed to recreate search index: %w", err)
	}
	s.search = index
	return nil
}

// SearchKnownFindings runs a full-text query over messages, narrowed by the
// fields of opts. Here FilePath must match exactly. An empty query matches
// everything.
func (s *BoltKnownFindingsStore) SearchKnownFindings(queryStr string, opts ListOptions) ([]*SearchResult, error) {
	if s.search == nil {
		return nil, errSearchClosed
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	} else if limit < 0 {
		limit = 100_000
	}

	var queries []query.Query
	if queryStr != "" {
		queries = append(queries, bleve.NewQueryStringQuery(queryStr))
	}
	term := func(field, value string) {
		if value == "" {
			return
		}
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		queries = append(queries, q)
	}
	term("scope", opts.Scope)
	term("category", string(opts.Category))
	term("ruleKey", opts.RuleKey)
	term("file", opts.FilePath)

	var searchQuery query.Query
	switch len(queries) {
	case 0:
		searchQuery = bleve.NewMatchAllQuery()
	case 1:
		searchQuery = queries[0]
	default:
		searchQuery = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	result, err := s.search.Search(req)
	if err != nil {
		return nil, fmt.Errorf("known findings search failed: %w", err)
	}

	var results []*SearchResult
	for _, hit := range result.Hits {
		scope, id := splitDocID(hit.ID)
		rec, err := s.GetKnownFinding(scope, id)
		if err != nil {
			continue
		}
		results = append(results, &SearchResult{Record: rec, Score: hit.Score})
	}
	return results, nil
}
