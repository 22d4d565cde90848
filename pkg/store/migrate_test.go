package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// setupMigrateTestDB opens a bare database with the store buckets and no
// schema version.
func setupMigrateTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{BucketKnownFindings, BucketFindingIndex, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return db
}

func writeSchemaVersion(t *testing.T, db *bolt.DB, version uint64) {
	t.Helper()
	err := db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketMeta).Put([]byte(metaSchemaVersion), encodeVersion(version))
	})
	require.NoError(t, err)
}

// seedRecord writes a record straight into the bucket tree, without an
// index entry.
func seedRecord(t *testing.T, db *bolt.DB, rec *Record) {
	t.Helper()
	err := db.Update(func(tx *bolt.Tx) error {
		scopeB, err := tx.Bucket(BucketKnownFindings).CreateBucketIfNotExists([]byte(rec.Scope))
		if err != nil {
			return err
		}
		fileB, err := scopeB.CreateBucketIfNotExists([]byte(rec.FilePath))
		if err != nil {
			return err
		}
		b, err := fileB.CreateBucketIfNotExists([]byte(rec.Category))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	require.NoError(t, err)
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db := setupMigrateTestDB(t)

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, RunMigrations(db))

	v, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestRunMigrations_AlreadyCurrent(t *testing.T) {
	db := setupMigrateTestDB(t)
	writeSchemaVersion(t, db, SchemaVersion)

	require.NoError(t, RunMigrations(db))

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestRunMigrations_BackfillsFindingIndex(t *testing.T) {
	db := setupMigrateTestDB(t)
	writeSchemaVersion(t, db, 1)

	rec := &Record{
		Scope:    "proj",
		FilePath: "src/a.go",
		Category: tracking.CategoryHotspot,
		KnownFinding: tracking.KnownFinding{
			ID:               uuid.New(),
			RuleKey:          "go:S2068",
			Message:          "password",
			IntroductionDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	seedRecord(t, db, rec)

	require.NoError(t, RunMigrations(db))

	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketFindingIndex).Get([]byte(docID("proj", rec.ID.String())))
		if data == nil {
			return fmt.Errorf("index entry missing")
		}
		var loc location
		if err := json.Unmarshal(data, &loc); err != nil {
			return err
		}
		assert.Equal(t, location{Scope: "proj", FilePath: "src/a.go", Category: tracking.CategoryHotspot, Seq: 1}, loc)
		return nil
	})
	require.NoError(t, err)
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	db := setupMigrateTestDB(t)
	writeSchemaVersion(t, db, SchemaVersion)

	seedRecord(t, db, &Record{
		Scope:        "proj",
		FilePath:     "a.go",
		Category:     tracking.CategoryIssue,
		KnownFinding: tracking.KnownFinding{ID: uuid.New(), RuleKey: "S1", Message: "old"},
	})

	origMigrations := migrations
	origVersion := SchemaVersion
	defer func() {
		migrations = origMigrations
		SchemaVersion = origVersion
	}()

	SchemaVersion = origVersion + 1
	migrations = append(migrations, migration{
		version:     SchemaVersion,
		description: "reword messages",
		migrate: func(tx *bolt.Tx) error {
			b := tx.Bucket(BucketKnownFindings).Bucket([]byte("proj")).Bucket([]byte("a.go")).Bucket([]byte(tracking.CategoryIssue))
			return b.ForEach(func(k, v []byte) error {
				var rec Record
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				rec.Message = "new"
				data, err := json.Marshal(&rec)
				if err != nil {
					return err
				}
				return b.Put(k, data)
			})
		},
	})

	require.NoError(t, RunMigrations(db))

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	err = db.View(func(tx *bolt.Tx) error {
		return walkRecords(tx.Bucket(BucketKnownFindings), func(_ location, rec *Record) error {
			assert.Equal(t, "new", rec.Message)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestRunMigrations_DowngradeError(t *testing.T) {
	db := setupMigrateTestDB(t)
	writeSchemaVersion(t, db, SchemaVersion+10)

	assert.Error(t, RunMigrations(db))
}

func TestRunMigrations_PartialFailure(t *testing.T) {
	db := setupMigrateTestDB(t)
	writeSchemaVersion(t, db, 1)

	origMigrations := migrations
	origVersion := SchemaVersion
	defer func() {
		migrations = origMigrations
		SchemaVersion = origVersion
	}()

	SchemaVersion = origVersion + 1
	migrations = append(migrations, migration{
		version:     SchemaVersion,
		description: "intentionally failing migration",
		migrate: func(tx *bolt.Tx) error {
			return fmt.Errorf("simulated failure")
		},
	})

	require.Error(t, RunMigrations(db))

	// v2 rolled back together with v3.
	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestMappingHash_Deterministic(t *testing.T) {
	m1, err := buildIndexMapping()
	require.NoError(t, err)
	m2, err := buildIndexMapping()
	require.NoError(t, err)

	h1 := MappingHash(m1)
	assert.NotEmpty(t, h1)
	assert.Equal(t, h1, MappingHash(m2))
}

func TestMappingHash_DifferentMappings(t *testing.T) {
	m1, err := buildIndexMapping()
	require.NoError(t, err)

	m2 := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	f := mapping.NewTextFieldMapping()
	f.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("different_field", f)
	m2.AddDocumentMapping("different", doc)
	m2.DefaultMapping = doc

	assert.NotEqual(t, MappingHash(m1), MappingHash(m2))
}
