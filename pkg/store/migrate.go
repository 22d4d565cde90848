package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2/mapping"
	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the layout version this binary writes. Bump it with
// every appended migration.
var SchemaVersion uint64 = 2

type migration struct {
	version     uint64
	description string
	migrate     func(tx *bolt.Tx) error
}

// migrations run in order, each once, for databases below its version.
var migrations = []migration{
	{version: 1, description: "baseline schema stamp", migrate: func(*bolt.Tx) error { return nil }},
	{version: 2, description: "backfill finding id index", migrate: rebuildFindingIndex},
}

// RunMigrations brings db up to SchemaVersion in a single transaction, so a
// failing step leaves the database at its previous version. A database
// newer than the binary is refused.
func RunMigrations(db *bolt.DB) error {
	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current > SchemaVersion:
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, SchemaVersion)
	case current == SchemaVersion:
		return nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			log.WithField("version", m.version).Infof("applying migration: %s", m.description)
			if err := m.migrate(tx); err != nil {
				return fmt.Errorf("v%d %s: %w", m.version, m.description, err)
			}
		}
		meta := tx.Bucket(BucketMeta)
		if meta == nil {
			return fmt.Errorf("meta bucket missing")
		}
		return meta.Put([]byte(metaSchemaVersion), encodeVersion(SchemaVersion))
	})
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the stored schema version, 0 for a database that
// was never stamped.
func GetSchemaVersion(db *bolt.DB) (uint64, error) {
	var version uint64
	err := db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(BucketMeta)
		if meta == nil {
			return nil
		}
		data := meta.Get([]byte(metaSchemaVersion))
		switch len(data) {
		case 0:
			return nil
		case 8:
			version = binary.BigEndian.Uint64(data)
			return nil
		default:
			return fmt.Errorf("corrupt %s: %d bytes", metaSchemaVersion, len(data))
		}
	})
	return version, err
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// MappingHash fingerprints a search mapping; a changed hash means the search
// index must be rebuilt.
func MappingHash(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// rebuildFindingIndex recreates the id -> location index from the stored
// findings.
func rebuildFindingIndex(tx *bolt.Tx) error {
	if tx.Bucket(BucketFindingIndex) != nil {
		if err := tx.DeleteBucket(BucketFindingIndex); err != nil {
			return err
		}
	}
	index, err := tx.CreateBucket(BucketFindingIndex)
	if err != nil {
		return err
	}
	root := tx.Bucket(BucketKnownFindings)
	if root == nil {
		return nil
	}
	return walkRecords(root, func(loc location, rec *Record) error {
		return putLocation(index, rec.Scope, rec.ID.String(), loc)
	})
}
