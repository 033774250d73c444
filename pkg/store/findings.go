// Package store persists findings on disk. BoltDB holds the canonical
// records plus a per-document key index; Bleve provides full-text
// search over finding messages.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/jmylchreest/tlint/pkg/lint"
)

var storeLog = log.New(os.Stderr, "[tlint:store] ", log.Ltime)

var (
	bucketFindings = []byte("findings")
	bucketDocIndex = []byte("doc_index")
	bucketMeta     = []byte("meta")

	keyMappingHash = []byte("search_mapping_hash")

	ErrNotFound     = fmt.Errorf("not found")
	errSearchClosed = fmt.Errorf("search index is closed")
)

// docIndexSep joins document path and finding ID in doc_index keys.
// Paths never contain NUL, so prefix scans on path+sep are unambiguous.
const docIndexSep = "\x00"

// FindingsStore persists findings using BoltDB plus a Bleve index.
type FindingsStore struct {
	db         *bolt.DB
	search     bleve.Index
	searchPath string
}

// NewFindingsStore opens or creates a findings store under dir.
func NewFindingsStore(dir string) (*FindingsStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "findings.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open findings db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFindings, bucketDocIndex, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	s := &FindingsStore{db: db, searchPath: filepath.Join(dir, "search.bleve")}
	if err := s.openSearch(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// openSearch opens the Bleve index, recovering from corruption and
// rebuilding when the stored mapping hash no longer matches the
// compiled-in mapping.
func (s *FindingsStore) openSearch() error {
	m := searchMapping()
	wantHash := hashMapping(m)

	idx, err := bleve.Open(s.searchPath)
	switch {
	case err == nil:
		if s.storedMappingHash() == wantHash {
			s.search = idx
			return nil
		}
		storeLog.Printf("search mapping changed, rebuilding index")
		idx.Close()
	case os.IsNotExist(err) || err == bleve.ErrorIndexPathDoesNotExist:
		// First run.
	default:
		storeLog.Printf("search index unreadable at %s (%v), rebuilding", s.searchPath, err)
	}

	if err := os.RemoveAll(s.searchPath); err != nil {
		return fmt.Errorf("remove stale search index: %w", err)
	}
	idx, err = bleve.New(s.searchPath, m)
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}
	s.search = idx

	if err := s.reindexAll(); err != nil {
		return fmt.Errorf("reindex findings: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyMappingHash, []byte(wantHash))
	})
}

func (s *FindingsStore) storedMappingHash() string {
	var stored string
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyMappingHash); v != nil {
			stored = string(v)
		}
		return nil
	})
	return stored
}

// reindexAll feeds every stored finding into the (fresh) search index.
func (s *FindingsStore) reindexAll() error {
	batch := s.search.NewBatch()
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFindings).ForEach(func(k, v []byte) error {
			var f lint.Finding
			if err := json.Unmarshal(v, &f); err != nil {
				return nil
			}
			return batch.Index(f.ID, searchDoc(&f))
		})
	})
	if err != nil {
		return err
	}
	return s.search.Batch(batch)
}

// searchMapping defines the index layout: message is the only analyzed
// free-text field; rule, severity and file are exact-match keywords.
func searchMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})

	doc := bleve.NewDocumentMapping()
	msg := bleve.NewTextFieldMapping()
	msg.Analyzer = "standard_lower"
	msg.Store = true
	doc.AddFieldMappingsAt("message", msg)

	for _, name := range []string{"rule", "severity", "file"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		doc.AddFieldMappingsAt(name, fm)
	}

	im.AddDocumentMapping("finding", doc)
	im.DefaultMapping = doc
	return im
}

func hashMapping(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		return "" // forces a rebuild
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func searchDoc(f *lint.Finding) map[string]interface{} {
	return map[string]interface{}{
		"message":  f.Message,
		"rule":     f.RuleID,
		"severity": f.Severity,
		"file":     f.DocumentPath,
	}
}

// Close releases the database and search index.
func (s *FindingsStore) Close() error {
	var first error
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			first = fmt.Errorf("close search index: %w", err)
		}
		s.search = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && first == nil {
			first = fmt.Errorf("close findings db: %w", err)
		}
		s.db = nil
	}
	return first
}

// GetFinding retrieves one finding by ID.
func (s *FindingsStore) GetFinding(id string) (*lint.Finding, error) {
	var f lint.Finding
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFindings).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ReplaceFindingsForDocument swaps the stored finding set for a document
// in one transaction. Missing IDs and timestamps are assigned here. On
// error the previous set stays intact.
func (s *FindingsStore) ReplaceFindingsForDocument(path string, findings []*lint.Finding) error {
	if s.search == nil {
		return errSearchClosed
	}

	var removed []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		fb := tx.Bucket(bucketFindings)
		ib := tx.Bucket(bucketDocIndex)

		var err error
		removed, err = deleteDocumentLocked(fb, ib, path)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, f := range findings {
			if f.ID == "" {
				f.ID = ulid.Make().String()
			}
			if f.CreatedAt.IsZero() {
				f.CreatedAt = now
			}
			f.DocumentPath = path

			data, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshal finding: %w", err)
			}
			if err := fb.Put([]byte(f.ID), data); err != nil {
				return err
			}
			if err := ib.Put(docIndexKey(path, f.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Bleve mutations happen after the committed tx so a rollback never
	// leaves the search index ahead of the database.
	batch := s.search.NewBatch()
	for _, id := range removed {
		batch.Delete(id)
	}
	for _, f := range findings {
		if err := batch.Index(f.ID, searchDoc(f)); err != nil {
			return err
		}
	}
	return s.search.Batch(batch)
}

func docIndexKey(path, id string) []byte {
	return []byte(path + docIndexSep + id)
}

// deleteDocumentLocked removes a document's findings and index entries
// inside an open write tx, returning the removed finding IDs.
func deleteDocumentLocked(fb, ib *bolt.Bucket, path string) ([]string, error) {
	prefix := []byte(path + docIndexSep)
	var ids []string

	c := ib.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		ids = append(ids, string(k[len(prefix):]))
	}
	for _, id := range ids {
		if err := fb.Delete([]byte(id)); err != nil {
			return nil, err
		}
		if err := ib.Delete(docIndexKey(path, id)); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// ListFindings scans stored findings applying exact-match filters,
// sorted by position. No full-text matching; see SearchFindings.
func (s *FindingsStore) ListFindings(opts lint.SearchOptions) ([]*lint.Finding, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = lint.DefaultListLimit
	}

	var out []*lint.Finding
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanFindings(tx, opts, func(f *lint.Finding) bool {
			out = append(out, f)
			return limit <= 0 || len(out) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	lint.SortFindings(out)
	return out, nil
}

// scanFindings walks the findings bucket, calling visit for each
// finding that passes the exact-match filters. visit returns false to
// stop early.
func scanFindings(tx *bolt.Tx, opts lint.SearchOptions, visit func(*lint.Finding) bool) error {
	c := tx.Bucket(bucketFindings).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var f lint.Finding
		if err := json.Unmarshal(v, &f); err != nil {
			continue
		}
		if opts.RuleID != "" && f.RuleID != opts.RuleID {
			continue
		}
		if opts.Severity != "" && f.Severity != opts.Severity {
			continue
		}
		if opts.DocumentPath != "" && f.DocumentPath != opts.DocumentPath {
			continue
		}
		if !visit(&f) {
			return nil
		}
	}
	return nil
}

// SearchFindings runs a full-text query over finding messages, with
// optional exact-match filters applied as term conjunctions.
func (s *FindingsStore) SearchFindings(queryStr string, opts lint.SearchOptions) ([]*lint.SearchResult, error) {
	if s.search == nil {
		return nil, errSearchClosed
	}
	limit := opts.Limit
	if limit == 0 {
		limit = lint.DefaultSearchLimit
	} else if limit < 0 {
		limit = 100_000
	}

	var parts []query.Query
	if queryStr != "" {
		parts = append(parts, bleve.NewQueryStringQuery(queryStr))
	}
	for field, value := range map[string]string{
		"rule":     opts.RuleID,
		"severity": opts.Severity,
		"file":     opts.DocumentPath,
	} {
		if value == "" {
			continue
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		parts = append(parts, tq)
	}

	var q query.Query
	switch len(parts) {
	case 0:
		q = bleve.NewMatchAllQuery()
	case 1:
		q = parts[0]
	default:
		q = bleve.NewConjunctionQuery(parts...)
	}

	res, err := s.search.Search(bleve.NewSearchRequestOptions(q, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("search findings: %w", err)
	}

	var out []*lint.SearchResult
	for _, hit := range res.Hits {
		f, err := s.GetFinding(hit.ID)
		if err != nil {
			// Index briefly ahead of the db; skip the orphan.
			continue
		}
		out = append(out, &lint.SearchResult{Finding: f, Score: hit.Score})
	}
	return out, nil
}

// Stats aggregates finding counts by rule and severity, honoring the
// same exact-match filters as ListFindings.
func (s *FindingsStore) Stats(opts lint.SearchOptions) (*lint.Stats, error) {
	stats := &lint.Stats{ByRule: map[string]int{}, BySeverity: map[string]int{}}
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanFindings(tx, opts, func(f *lint.Finding) bool {
			stats.Total++
			stats.ByRule[f.RuleID]++
			stats.BySeverity[f.Severity]++
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearDocument drops every finding for a document path and reports how
// many were removed.
func (s *FindingsStore) ClearDocument(path string) (int, error) {
	if s.search == nil {
		return 0, errSearchClosed
	}
	var removed []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		removed, err = deleteDocumentLocked(tx.Bucket(bucketFindings), tx.Bucket(bucketDocIndex), path)
		return err
	})
	if err != nil {
		return 0, err
	}
	batch := s.search.NewBatch()
	for _, id := range removed {
		batch.Delete(id)
	}
	if err := s.search.Batch(batch); err != nil {
		return len(removed), err
	}
	return len(removed), nil
}

// Clear wipes all findings and recreates the search index.
func (s *FindingsStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFindings, bucketDocIndex} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.search != nil {
		if err := s.search.Close(); err != nil {
			return fmt.Errorf("close search index for clear: %w", err)
		}
		s.search = nil
	}
	if err := os.RemoveAll(s.searchPath); err != nil {
		// Reopen the old index so the store stays usable.
		if idx, reopenErr := bleve.Open(s.searchPath); reopenErr == nil {
			s.search = idx
		}
		return fmt.Errorf("remove search index: %w", err)
	}
	idx, err := bleve.New(s.searchPath, searchMapping())
	if err != nil {
		return fmt.Errorf("recreate search index: %w", err)
	}
	s.search = idx
	return nil
}
