package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// migration upgrades the schema to version. Migrations run inside the
// open transaction in order, so a crash part way leaves the previous
// version intact.
type migration struct {
	version uint64
	name    string
	apply   func(tx *bolt.Tx) error
}

var migrations = []migration{
	{version: 1, name: "create tables", apply: createTables},
	{version: 2, name: "add cloud ids", apply: addCloudIDs},
}

// CurrentSchemaVersion is the version a freshly opened store ends at.
func CurrentSchemaVersion() uint64 {
	return migrations[len(migrations)-1].version
}

func migrate(tx *bolt.Tx) error {
	for _, name := range [][]byte{metaBucket, appBucket} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}

	current := readSchemaVersion(tx)
	if current > CurrentSchemaVersion() {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, CurrentSchemaVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		if err := m.apply(tx); err != nil {
			return fmt.Errorf("applying migration %d (%s): %w", m.version, m.name, err)
		}

		if err := writeSchemaVersion(tx, m.version); err != nil {
			return err
		}
	}

	return nil
}

func readSchemaVersion(tx *bolt.Tx) uint64 {
	b := tx.Bucket(metaBucket)
	if b == nil {
		return 0
	}

	v := b.Get(schemaVersionKey)
	if len(v) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(v)
}

func writeSchemaVersion(tx *bolt.Tx, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)

	return tx.Bucket(metaBucket).Put(schemaVersionKey, buf)
}

func createTables(tx *bolt.Tx) error {
	for _, name := range [][]byte{
		articlesBucket,
		listsBucket,
		membershipsBucket,
		articleURLIndex,
		listNameIndex,
		membershipPairIndex,
		membershipListIndex,
	} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}

	return nil
}

// addCloudIDs creates the cloud id indexes and rewrites every existing
// article and list with an explicit null cloudId. Records that already
// carry a cloud id are indexed.
func addCloudIDs(tx *bolt.Tx) error {
	pairs := []struct {
		records []byte
		index   []byte
	}{
		{articlesBucket, articleCloudIndex},
		{listsBucket, listCloudIndex},
	}

	for _, p := range pairs {
		idx, err := tx.CreateBucketIfNotExists(p.index)
		if err != nil {
			return err
		}

		b := tx.Bucket(p.records)

		type rewrite struct {
			key  []byte
			data []byte
		}

		var pending []rewrite

		err = b.ForEach(func(k, v []byte) error {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decoding record %d: %w", btoi(k), err)
			}

			raw, ok := doc["cloudId"]
			if !ok {
				doc["cloudId"] = json.RawMessage("null")

				data, err := json.Marshal(doc)
				if err != nil {
					return err
				}

				pending = append(pending, rewrite{key: append([]byte(nil), k...), data: data})

				return nil
			}

			var cloudID *string
			if err := json.Unmarshal(raw, &cloudID); err != nil {
				return fmt.Errorf("decoding cloudId of record %d: %w", btoi(k), err)
			}

			if cloudID != nil && *cloudID != "" {
				return idx.Put([]byte(*cloudID), append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		// Writes are deferred until iteration ends; bbolt cursors are
		// invalidated by puts into the bucket being iterated.
		for _, r := range pending {
			if err := b.Put(r.key, r.data); err != nil {
				return err
			}
		}
	}

	return nil
}
