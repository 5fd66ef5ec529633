package osmx

import (
	"encoding/binary"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/pkg/errors"
)

// Metadata key names, part of the on-disk compatibility contract.
const (
	MetaImportFilename          = "import_filename"
	MetaOsmosisReplicationStamp = "osmosis_replication_timestamp"
)

// Metadata is a read handle over the metadata table: arbitrary byte keys and values.
type Metadata struct {
	txn *lmdb.Txn
	dbi lmdb.DBI
}

// Metadata returns a handle over the metadata table.
func (t *Transaction) Metadata() Metadata {
	return Metadata{txn: t.txn, dbi: t.db.dbis[tblMetadata]}
}

// Get returns the raw bytes stored under key, and whether it was present.
func (m Metadata) Get(key string) ([]byte, bool, error) {
	val, err := m.txn.Get(m.dbi, []byte(key))
	if lmdb.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "unable to read metadata key %q", key)
	}
	return val, true, nil
}

// ReplicationTimestamp returns the osmosis_replication_timestamp value, decoded as a
// native-endian (little-endian) i64 unix timestamp in seconds, and whether it was present.
func (m Metadata) ReplicationTimestamp() (int64, bool, error) {
	raw, found, err := m.Get(MetaOsmosisReplicationStamp)
	if err != nil || !found {
		return 0, found, err
	}
	if len(raw) != 8 {
		return 0, false, errors.Errorf("corrupt %s metadata value: want 8 bytes, got %d", MetaOsmosisReplicationStamp, len(raw))
	}
	return int64(binary.LittleEndian.Uint64(raw)), true, nil
}

// ImportFilename returns the source PBF path recorded at ingest time, and whether it was present.
func (m Metadata) ImportFilename() (string, bool, error) {
	raw, found, err := m.Get(MetaImportFilename)
	if err != nil || !found {
		return "", found, err
	}
	return string(raw), true, nil
}

// putMetadataString writes a raw byte value for key within txn. Used only by ingest.
func putMetadataString(txn *lmdb.Txn, dbi lmdb.DBI, key, value string) error {
	return txn.Put(dbi, []byte(key), []byte(value), 0)
}

// putMetadataInt64 writes value as a native-endian (little-endian) 8-byte int for key within txn.
// Used only by ingest.
func putMetadataInt64(txn *lmdb.Txn, dbi lmdb.DBI, key string, value int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	return txn.Put(dbi, []byte(key), buf[:], 0)
}
