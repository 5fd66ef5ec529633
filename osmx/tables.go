package osmx

import (
	"iter"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/pkg/errors"

	"osmx/spatial"
)

// ElementTable is a read handle over one of the four primary tables (locations, nodes, ways,
// relations), keyed by element id in ascending order. E is decoded lazily from a []byte borrowed
// from the transaction's snapshot; a malformed stored record panics inside decode, since a corrupt
// record is a database invariant violation, not a normal runtime condition. Get recovers that
// panic into an error; All lets it propagate.
type ElementTable[E any] struct {
	txn    *lmdb.Txn
	dbi    lmdb.DBI
	name   string
	decode func([]byte) E
}

// Get looks up id and reports whether it was present.
func (t ElementTable[E]) Get(id uint64) (result E, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("corrupt %s record for id %d: %v", t.name, id, r)
		}
	}()

	raw, getErr := t.txn.Get(t.dbi, uint64Key(id))
	if lmdb.IsNotFound(getErr) {
		return result, false, nil
	}
	if getErr != nil {
		return result, false, errors.Wrapf(getErr, "unable to read %s record for id %d", t.name, id)
	}
	return t.decode(raw), true, nil
}

// All returns every (id, record) pair in ascending id order. Decode errors surface as a panic
// from the iterator, consistent with Get's treatment of corrupt records; All itself does not
// recover, since iter.Seq2 has no error channel — callers scanning a whole table are expected to
// let a corrupt database crash the scan.
func (t ElementTable[E]) All() iter.Seq2[uint64, E] {
	return func(yield func(uint64, E) bool) {
		cursor, err := t.txn.OpenCursor(t.dbi)
		if err != nil {
			panic(errors.Wrapf(err, "unable to open cursor on %s", t.name))
		}
		defer cursor.Close()

		key, val, err := cursor.Get(nil, nil, lmdb.First)
		for err == nil {
			if !yield(keyUint64(key), t.decode(val)) {
				return
			}
			key, val, err = cursor.Get(nil, nil, lmdb.Next)
		}
		if !lmdb.IsNotFound(err) {
			panic(errors.Wrapf(err, "cursor scan of %s failed", t.name))
		}
	}
}

// Locations returns a handle over the locations table.
func (t *Transaction) Locations() ElementTable[Location] {
	return ElementTable[Location]{txn: t.txn, dbi: t.db.dbis[tblLocations], name: "locations", decode: newLocation}
}

// Nodes returns a handle over the nodes table (tagged nodes only).
func (t *Transaction) Nodes() ElementTable[Node] {
	return ElementTable[Node]{txn: t.txn, dbi: t.db.dbis[tblNodes], name: "nodes", decode: newNode}
}

// Ways returns a handle over the ways table.
func (t *Transaction) Ways() ElementTable[Way] {
	return ElementTable[Way]{txn: t.txn, dbi: t.db.dbis[tblWays], name: "ways", decode: newWay}
}

// Relations returns a handle over the relations table.
func (t *Transaction) Relations() ElementTable[Relation] {
	return ElementTable[Relation]{txn: t.txn, dbi: t.db.dbis[tblRelations], name: "relations", decode: newRelation}
}

// SpatialIndexTable is a read handle over cell_node, keyed by S2 level-16 cell id with
// duplicate node-id values sorted ascending per cell.
type SpatialIndexTable struct {
	txn *lmdb.Txn
	dbi lmdb.DBI
}

// CellNodes returns a handle over the cell_node spatial index.
func (t *Transaction) CellNodes() SpatialIndexTable {
	return SpatialIndexTable{txn: t.txn, dbi: t.db.dbis[tblCellNode]}
}

// FindInRegion returns every node id whose level-16 cell falls within region's cover. Each cover
// cell's [child_begin, child_end) range is scanned independently; a node id near a cover boundary
// may be yielded more than once if it falls in two adjacent ranges — deduplication, like
// geometric post-filtering, is the caller's responsibility.
func (t SpatialIndexTable) FindInRegion(region spatial.Region) iter.Seq[uint64] {
	ranges := region.Ranges()
	return func(yield func(uint64) bool) {
		cursor, err := t.txn.OpenCursor(t.dbi)
		if err != nil {
			panic(errors.Wrap(err, "unable to open cursor on cell_node"))
		}
		defer cursor.Close()

		for _, r := range ranges {
			key, val, err := cursor.Get(uint64Key(r.Start), nil, lmdb.SetRange)
			for err == nil && keyUint64(key) < r.End {
				if !yield(keyUint64(val)) {
					return
				}
				key, val, err = cursor.Get(nil, nil, lmdb.NextDup)
				if lmdb.IsNotFound(err) {
					key, val, err = cursor.Get(nil, nil, lmdb.Next)
				}
			}
			if err != nil && !lmdb.IsNotFound(err) {
				panic(errors.Wrap(err, "cell_node range scan failed"))
			}
		}
	}
}

// JoinTable is a read handle over one of the four reverse-relationship index tables (node_way,
// node_relation, way_relation, relation_relation), keyed by the referenced element's id with
// duplicate values being the ids of elements that reference it, sorted ascending.
type JoinTable struct {
	txn  *lmdb.Txn
	dbi  lmdb.DBI
	name string
}

// Get returns every id of an element that refers to id, ascending.
func (t JoinTable) Get(id uint64) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		cursor, err := t.txn.OpenCursor(t.dbi)
		if err != nil {
			panic(errors.Wrapf(err, "unable to open cursor on %s", t.name))
		}
		defer cursor.Close()

		_, val, err := cursor.Get(uint64Key(id), nil, lmdb.SetKey)
		for err == nil {
			if !yield(keyUint64(val)) {
				return
			}
			_, val, err = cursor.Get(nil, nil, lmdb.NextDup)
		}
		if !lmdb.IsNotFound(err) {
			panic(errors.Wrapf(err, "%s lookup failed for id %d", t.name, id))
		}
	}
}

// NodeWays returns a handle over node_way: way ids that reference a node.
func (t *Transaction) NodeWays() JoinTable {
	return JoinTable{txn: t.txn, dbi: t.db.dbis[tblNodeWay], name: "node_way"}
}

// NodeRelations returns a handle over node_relation: relation ids that reference a node.
func (t *Transaction) NodeRelations() JoinTable {
	return JoinTable{txn: t.txn, dbi: t.db.dbis[tblNodeRelation], name: "node_relation"}
}

// WayRelations returns a handle over way_relation: relation ids that reference a way.
func (t *Transaction) WayRelations() JoinTable {
	return JoinTable{txn: t.txn, dbi: t.db.dbis[tblWayRelation], name: "way_relation"}
}

// RelationRelations returns a handle over relation_relation: relation ids that reference a
// relation as a member.
func (t *Transaction) RelationRelations() JoinTable {
	return JoinTable{txn: t.txn, dbi: t.db.dbis[tblRelationRelation], name: "relation_relation"}
}
