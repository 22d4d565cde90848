package store

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// LocalOnlyRecord is a local-only issue together with where it belongs.
type LocalOnlyRecord struct {
	Scope    string `json:"scope"`
	FilePath string `json:"file"`
	tracking.LocalOnlyIssue
}

// LoadLocalOnlyIssues implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) LoadLocalOnlyIssues(scope, filePath string) ([]tracking.LocalOnlyIssue, error) {
	var out []tracking.LocalOnlyIssue
	err := s.db.View(func(tx *bolt.Tx) error {
		b := localOnlyFileBucket(tx, scope, filePath)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec LocalOnlyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode local-only issue of %s: %w", filePath, err)
			}
			out = append(out, rec.LocalOnlyIssue)
			return nil
		})
	})
	return out, err
}

// StoreLocalOnlyIssues implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) StoreLocalOnlyIssues(scope, filePath string, issues []tracking.LocalOnlyIssue) error {
	if scope == "" || filePath == "" {
		return fmt.Errorf("scope and file path are required")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		scopeB, err := tx.Bucket(BucketLocalOnlyIssues).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		if scopeB.Bucket([]byte(filePath)) != nil {
			if err := scopeB.DeleteBucket([]byte(filePath)); err != nil {
				return err
			}
		}
		if len(issues) == 0 {
			return nil
		}
		b, err := scopeB.CreateBucket([]byte(filePath))
		if err != nil {
			return err
		}
		for _, issue := range issues {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(LocalOnlyRecord{Scope: scope, FilePath: filePath, LocalOnlyIssue: issue})
			if err != nil {
				return fmt.Errorf("marshal local-only issue: %w", err)
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"scope":  scope,
		"file":   filePath,
		"stored": len(issues),
	}).Debug("stored local-only issues")
	return nil
}

// ListLocalOnlyIssues implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) ListLocalOnlyIssues(scope string) ([]*LocalOnlyRecord, error) {
	var out []*LocalOnlyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return walkLocalOnly(tx, scope, func(_ *bolt.Bucket, _ []byte, rec *LocalOnlyRecord) error {
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// ResolveLocalOnlyIssue implements KnownFindingsStore.
func (s *BoltKnownFindingsStore) ResolveLocalOnlyIssue(scope, id string, resolution *tracking.LocalResolution) (*LocalOnlyRecord, error) {
	var found *LocalOnlyRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		var (
			fileB *bolt.Bucket
			key   []byte
		)
		err := walkLocalOnly(tx, scope, func(b *bolt.Bucket, k []byte, rec *LocalOnlyRecord) error {
			if rec.ID.String() != id {
				return nil
			}
			fileB, key, found = b, append([]byte(nil), k...), rec
			return errStopWalk
		})
		if err != nil && err != errStopWalk {
			return err
		}
		if found == nil {
			return ErrNotFound
		}

		found.Resolution = resolution
		data, err := json.Marshal(found)
		if err != nil {
			return fmt.Errorf("marshal local-only issue: %w", err)
		}
		return fileB.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func localOnlyFileBucket(tx *bolt.Tx, scope, filePath string) *bolt.Bucket {
	scopeB := tx.Bucket(BucketLocalOnlyIssues).Bucket([]byte(scope))
	if scopeB == nil {
		return nil
	}
	return scopeB.Bucket([]byte(filePath))
}

// walkLocalOnly calls fn for every local-only issue of scope, every scope
// when scope is empty, in key order.
func walkLocalOnly(tx *bolt.Tx, scope string, fn func(b *bolt.Bucket, k []byte, rec *LocalOnlyRecord) error) error {
	root := tx.Bucket(BucketLocalOnlyIssues)
	walk := func(scopeB *bolt.Bucket) error {
		return scopeB.ForEachBucket(func(file []byte) error {
			fileB := scopeB.Bucket(file)
			return fileB.ForEach(func(k, v []byte) error {
				rec := new(LocalOnlyRecord)
				if err := json.Unmarshal(v, rec); err != nil {
					log.WithError(err).WithField("file", string(file)).Warn("skipping undecodable local-only issue")
					return nil
				}
				return fn(fileB, k, rec)
			})
		})
	}
	if scope != "" {
		scopeB := root.Bucket([]byte(scope))
		if scopeB == nil {
			return nil
		}
		return walk(scopeB)
	}
	return root.ForEachBucket(func(name []byte) error {
		return walk(root.Bucket(name))
	})
}
