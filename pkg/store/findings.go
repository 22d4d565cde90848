package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// BoltKnownFindingsStore implements KnownFindingsStore using BoltDB + Bleve.
type BoltKnownFindingsStore struct {
	db         *bolt.DB
	search     bleve.Index
	dbPath     string
	searchPath string
}

// NewKnownFindingsStore opens or creates a store in dir.
func NewKnownFindingsStore(dir string) (*BoltKnownFindingsStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, "known_findings.db")
	searchPath := filepath.Join(dir, "search.bleve")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open known findings db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketKnownFindings, BucketFindingIndex, BucketLocalOnlyIssues, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	index, err := openOrCreateSearchIndex(searchPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create/open search index: %w", err)
	}

	s := &BoltKnownFindingsStore{
		db:         db,
		search:     index,
		dbPath:     dbPath,
		searchPath: searchPath,
	}
	if err := s.ensureSearchMapping(); err != nil {
		s.search.Close()
		db.Close()
		return nil, fmt.Errorf("search mapping check failed: %w", err)
	}
	return s, nil
}

// Close closes the store.
func (s *BoltKnownFindingsStore) Close() error {
	var errs []error
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close search: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	if len(errs) > 1 {
		return fmt.Errorf("%v; %v", errs[0], errs[1])
	}
	return nil
}

// LoadKnownFindings implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) LoadKnownFindings(scope, filePath string, category tracking.Category) ([]tracking.KnownFinding, error) {
	var out []tracking.KnownFinding
	err := s.db.View(func(tx *bolt.Tx) error {
		b := categoryBucket(tx, scope, filePath, category)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode known finding of %s: %w", filePath, err)
			}
			out = append(out, rec.KnownFinding)
			return nil
		})
	})
	return out, err
}

// StoreKnownFindings implements KnownFindingsStore. The bbolt transaction
// decides the outcome; Bleve is updated afterwards so a rollback cannot
// leave it ahead of the database.
func (s *BoltKnownFindingsStore) StoreKnownFindings(scope, filePath string, category tracking.Category, findings []tracking.KnownFinding) error {
	if s.search == nil {
		return errSearchClosed
	}
	if scope == "" || filePath == "" {
		return fmt.Errorf("scope and file path are required")
	}
	if !category.Valid() {
		return fmt.Errorf("invalid category %q", category)
	}

	var deleteIDs []string
	puts := make(map[string]map[string]interface{}, len(findings))

	err := s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketFindingIndex)
		scopeB, err := tx.Bucket(BucketKnownFindings).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		fileB, err := scopeB.CreateBucketIfNotExists([]byte(filePath))
		if err != nil {
			return err
		}

		if old := fileB.Bucket([]byte(category)); old != nil {
			err := old.ForEach(func(_, v []byte) error {
				var rec Record
				if err := json.Unmarshal(v, &rec); err != nil {
					return nil
				}
				deleteIDs = append(deleteIDs, docID(scope, rec.ID.String()))
				return nil
			})
			if err != nil {
				return err
			}
			if err := fileB.DeleteBucket([]byte(category)); err != nil {
				return err
			}
		}
		for _, id := range deleteIDs {
			if err := index.Delete([]byte(id)); err != nil {
				return err
			}
		}

		if len(findings) == 0 {
			return dropIfEmpty(scopeB, []byte(filePath))
		}

		b, err := fileB.CreateBucket([]byte(category))
		if err != nil {
			return err
		}
		for _, f := range findings {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rec := &Record{Scope: scope, FilePath: filePath, Category: category, KnownFinding: f}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal known finding: %w", err)
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
			loc := location{Scope: scope, FilePath: filePath, Category: category, Seq: seq}
			if err := putLocation(index, scope, f.ID.String(), loc); err != nil {
				return err
			}
			puts[docID(scope, f.ID.String())] = recordToSearchDoc(rec)
		}
		return nil
	})
	if err != nil {
		return err
	}

	batch := s.search.NewBatch()
	for _, id := range deleteIDs {
		batch.Delete(id)
	}
	for id, doc := range puts {
		if err := batch.Index(id, doc); err != nil {
			return err
		}
	}
	if err := s.search.Batch(batch); err != nil {
		return fmt.Errorf("update search index: %w", err)
	}

	log.WithFields(logrus.Fields{
		"scope":    scope,
		"file":     filePath,
		"category": category,
		"replaced": len(deleteIDs),
		"stored":   len(findings),
	}).Debug("stored known findings")
	return nil
}

// LoadSnapshot implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) LoadSnapshot(scope string, filePaths []string) (tracking.KnownFindings, error) {
	snapshot := tracking.NewKnownFindings()

	if len(filePaths) == 0 {
		err := s.db.View(func(tx *bolt.Tx) error {
			scopeB := tx.Bucket(BucketKnownFindings).Bucket([]byte(scope))
			if scopeB == nil {
				return nil
			}
			return walkScope(scopeB, func(_ location, rec *Record) error {
				snapshot.Add(rec.FilePath, rec.Category, rec.KnownFinding)
				return nil
			})
		})
		return snapshot, err
	}

	for _, path := range filePaths {
		for _, category := range tracking.Categories {
			findings, err := s.LoadKnownFindings(scope, path, category)
			if err != nil {
				return snapshot, err
			}
			snapshot.Add(path, category, findings...)
		}
	}
	return snapshot, nil
}

// GetKnownFinding returns the record of id in scope.
func (s *BoltKnownFindingsStore) GetKnownFinding(scope, id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketFindingIndex).Get([]byte(docID(scope, id)))
		if data == nil {
			return ErrNotFound
		}
		var loc location
		if err := json.Unmarshal(data, &loc); err != nil {
			return fmt.Errorf("decode location of %s: %w", id, err)
		}
		b := categoryBucket(tx, loc.Scope, loc.FilePath, loc.Category)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(itob(loc.Seq))
		if v == nil {
			return ErrNotFound
		}
		rec = new(Record)
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListKnownFindings returns the records matching opts, ordered by scope,
// file, category and storage order.
func (s *BoltKnownFindingsStore) ListKnownFindings(opts ListOptions) ([]*Record, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	var out []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return walkRecords(tx.Bucket(BucketKnownFindings), func(_ location, rec *Record) error {
			if !opts.matches(rec) {
				return nil
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return errStopWalk
			}
			return nil
		})
	})
	if err == errStopWalk {
		err = nil
	}
	return out, err
}

// Stats returns aggregate counts over the records matching opts. Limit is
// ignored.
func (s *BoltKnownFindingsStore) Stats(opts ListOptions) (*Stats, error) {
	stats := &Stats{
		ByCategory: make(map[tracking.Category]int),
		ByRule:     make(map[string]int),
	}
	files := make(map[string]struct{})

	err := s.db.View(func(tx *bolt.Tx) error {
		return walkRecords(tx.Bucket(BucketKnownFindings), func(_ location, rec *Record) error {
			if !opts.matches(rec) {
				return nil
			}
			stats.Total++
			stats.ByCategory[rec.Category]++
			stats.ByRule[rec.RuleKey]++
			files[rec.Scope+"\x00"+rec.FilePath] = struct{}{}
			return nil
		})
	})
	stats.Files = len(files)
	return stats, err
}

// ClearScope removes every finding of scope, local-only issues included, and
// returns how many known findings there were.
func (s *BoltKnownFindingsStore) ClearScope(scope string) (int, error) {
	if s.search == nil {
		return 0, errSearchClosed
	}

	var ids []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		if local := tx.Bucket(BucketLocalOnlyIssues); local.Bucket([]byte(scope)) != nil {
			if err := local.DeleteBucket([]byte(scope)); err != nil {
				return err
			}
		}
		root := tx.Bucket(BucketKnownFindings)
		scopeB := root.Bucket([]byte(scope))
		if scopeB == nil {
			return nil
		}
		err := walkScope(scopeB, func(_ location, rec *Record) error {
			ids = append(ids, docID(scope, rec.ID.String()))
			return nil
		})
		if err != nil {
			return err
		}
		index := tx.Bucket(BucketFindingIndex)
		for _, id := range ids {
			if err := index.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return root.DeleteBucket([]byte(scope))
	})
	if err != nil {
		return 0, err
	}

	batch := s.search.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.search.Batch(batch); err != nil {
		log.WithError(err).WithField("scope", scope).Warn("failed to delete findings from search index")
	}
	return len(ids), nil
}

// Clear removes all findings of all scopes.
func (s *BoltKnownFindingsStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{BucketKnownFindings, BucketFindingIndex, BucketLocalOnlyIssues} {
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
	return s.recreateSearchIndex()
}

func categoryBucket(tx *bolt.Tx, scope, filePath string, category tracking.Category) *bolt.Bucket {
	scopeB := tx.Bucket(BucketKnownFindings).Bucket([]byte(scope))
	if scopeB == nil {
		return nil
	}
	fileB := scopeB.Bucket([]byte(filePath))
	if fileB == nil {
		return nil
	}
	return fileB.Bucket([]byte(category))
}

// dropIfEmpty deletes the nested bucket name of parent when it holds
// nothing.
func dropIfEmpty(parent *bolt.Bucket, name []byte) error {
	b := parent.Bucket(name)
	if b == nil {
		return nil
	}
	if k, _ := b.Cursor().First(); k != nil {
		return nil
	}
	return parent.DeleteBucket(name)
}

func putLocation(index *bolt.Bucket, scope, id string, loc location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return index.Put([]byte(docID(scope, id)), data)
}

var errStopWalk = fmt.Errorf("stop walk")

// walkRecords calls fn for every record below root, in key order.
func walkRecords(root *bolt.Bucket, fn func(location, *Record) error) error {
	return root.ForEachBucket(func(scope []byte) error {
		return walkScope(root.Bucket(scope), fn)
	})
}

func walkScope(scopeB *bolt.Bucket, fn func(location, *Record) error) error {
	return scopeB.ForEachBucket(func(file []byte) error {
		fileB := scopeB.Bucket(file)
		return fileB.ForEachBucket(func(category []byte) error {
			return fileB.Bucket(category).ForEach(func(k, v []byte) error {
				var rec Record
				if err := json.Unmarshal(v, &rec); err != nil {
					log.WithError(err).WithField("file", string(file)).Warn("skipping undecodable known finding")
					return nil
				}
				loc := location{
					Scope:    rec.Scope,
					FilePath: rec.FilePath,
					Category: rec.Category,
					Seq:      btoi(k),
				}
				return fn(loc, &rec)
			})
		})
	})
}

func btoi(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
