package osmx

import (
	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/pkg/errors"
)

// Writer is the single write transaction package ingest uses to build a new osmx file. LMDB
// allows only one writer at a time per environment; this type does not itself enforce that, it
// simply wraps the one write Txn ingest is expected to hold open for the run's duration.
type Writer struct {
	db  *Database
	txn *lmdb.Txn
}

// NewWriter begins the database's write transaction.
func (db *Database) NewWriter() (*Writer, error) {
	txn, err := db.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to begin write transaction")
	}
	return &Writer{db: db, txn: txn}, nil
}

// PutMetadataString stores a raw string value under key.
func (w *Writer) PutMetadataString(key, value string) error {
	return errors.Wrapf(putMetadataString(w.txn, w.db.dbis[tblMetadata], key, value), "unable to write metadata key %q", key)
}

// PutMetadataInt64 stores value as a native-endian 8-byte int under key.
func (w *Writer) PutMetadataInt64(key string, value int64) error {
	return errors.Wrapf(putMetadataInt64(w.txn, w.db.dbis[tblMetadata], key, value), "unable to write metadata key %q", key)
}

// PutLocation appends a location record. id must be strictly greater than every id previously
// appended to this table within the transaction (LMDB's APPEND fast path; violating this returns
// an error from the underlying binding rather than silently falling back to a slow insert).
func (w *Writer) PutLocation(id uint64, raw []byte) error {
	return errors.Wrapf(w.txn.Put(w.db.dbis[tblLocations], uint64Key(id), raw, lmdb.Append), "unable to append location %d", id)
}

// PutNode appends a tagged node's record.
func (w *Writer) PutNode(id uint64, raw []byte) error {
	return errors.Wrapf(w.txn.Put(w.db.dbis[tblNodes], uint64Key(id), raw, lmdb.Append), "unable to append node %d", id)
}

// PutWay appends a way's record.
func (w *Writer) PutWay(id uint64, raw []byte) error {
	return errors.Wrapf(w.txn.Put(w.db.dbis[tblWays], uint64Key(id), raw, lmdb.Append), "unable to append way %d", id)
}

// PutRelation appends a relation's record.
func (w *Writer) PutRelation(id uint64, raw []byte) error {
	return errors.Wrapf(w.txn.Put(w.db.dbis[tblRelations], uint64Key(id), raw, lmdb.Append), "unable to append relation %d", id)
}

// putIndexPair appends one (key, value) pair to a secondary index table using LMDB's APPEND_DUP
// fast path: key must be non-decreasing across calls, and value strictly increasing within a key.
func (w *Writer) putIndexPair(table int, key, value uint64) error {
	return w.txn.Put(w.db.dbis[table], uint64Key(key), uint64Key(value), lmdb.AppendDup)
}

// PutCellNode appends (cell id, node id) to the spatial index.
func (w *Writer) PutCellNode(cell, node uint64) error {
	return errors.Wrapf(w.putIndexPair(tblCellNode, cell, node), "unable to append cell_node (%d,%d)", cell, node)
}

// PutNodeWay appends (node id, way id) to node_way: way references a node.
func (w *Writer) PutNodeWay(node, way uint64) error {
	return errors.Wrapf(w.putIndexPair(tblNodeWay, node, way), "unable to append node_way (%d,%d)", node, way)
}

// PutNodeRelation appends (node id, relation id) to node_relation: relation references a node.
func (w *Writer) PutNodeRelation(node, relation uint64) error {
	return errors.Wrapf(w.putIndexPair(tblNodeRelation, node, relation), "unable to append node_relation (%d,%d)", node, relation)
}

// PutWayRelation appends (way id, relation id) to way_relation: relation references a way.
func (w *Writer) PutWayRelation(way, relation uint64) error {
	return errors.Wrapf(w.putIndexPair(tblWayRelation, way, relation), "unable to append way_relation (%d,%d)", way, relation)
}

// PutRelationRelation appends (referenced relation id, referencing relation id) to
// relation_relation: referencingID's member list includes referencedID.
func (w *Writer) PutRelationRelation(referencedID, referencingID uint64) error {
	return errors.Wrapf(w.putIndexPair(tblRelationRelation, referencedID, referencingID), "unable to append relation_relation (%d,%d)", referencedID, referencingID)
}

// Commit finalizes the write transaction, making every put visible to subsequent readers.
func (w *Writer) Commit() error {
	return errors.Wrap(w.txn.Commit(), "unable to commit write transaction")
}

// Abort discards the write transaction; nothing written through it becomes visible.
func (w *Writer) Abort() {
	w.txn.Abort()
}
