// Package store persists known findings between analysis runs.
//
// Findings live in a bbolt database, nested as
// known_findings/<scope>/<file>/<category>/<sequence>, so the findings of one
// file and category keep the order they were stored in. A bleve index over
// the same records serves full-text search. Issues the server does not know
// are kept apart under local_only_issues/<scope>/<file>/<sequence>.
package store

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("component", "store")

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	errSearchClosed = errors.New("known findings search index is closed")
)

// Bucket names.
var (
	BucketKnownFindings   = []byte("known_findings")
	BucketFindingIndex    = []byte("finding_index")
	BucketLocalOnlyIssues = []byte("local_only_issues")
	BucketMeta            = []byte("meta")
)

const (
	metaSchemaVersion = "schema_version"
	metaMappingHash   = "search_mapping_hash"
)

// itob converts a uint64 to a big-endian byte slice, so bbolt keys sort in
// insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := uint(0); i < 8; i++ {
		b[7-i] = byte(v >> (i * 8))
	}
	return b
}

// getMeta reads a string value from the meta bucket.
func getMeta(db *bolt.DB, key string) (string, error) {
	var val string
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketMeta)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		val = string(data)
		return nil
	})
	return val, err
}

// setMeta writes a string value to the meta bucket.
func setMeta(db *bolt.DB, key, value string) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketMeta)
		if b == nil {
			return fmt.Errorf("meta bucket not found")
		}
		return b.Put([]byte(key), []byte(value))
	})
}
