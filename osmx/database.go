package osmx

import (
	"encoding/binary"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/pkg/errors"
)

// envFlags match the flags ingest creates the environment with; a database opened for reading
// must use the same flags LMDB was given at creation (NoSubdir is load-bearing: the environment
// is a single file, not a directory).
const envFlags = lmdb.NoSubdir | lmdb.NoReadahead | lmdb.NoSync

// tableNames is the fixed, compatibility-relevant creation and stat order (see spec.md §6).
var tableNames = []string{
	"metadata",
	"locations",
	"nodes",
	"ways",
	"relations",
	"cell_node",
	"node_way",
	"node_relation",
	"way_relation",
	"relation_relation",
}

const (
	tblMetadata = iota
	tblLocations
	tblNodes
	tblWays
	tblRelations
	tblCellNode
	tblNodeWay
	tblNodeRelation
	tblWayRelation
	tblRelationRelation
)

// elementTableFlags is shared by the four primary element tables: 64-bit integer keys, values
// appended in ascending key order during ingest.
const elementTableFlags = lmdb.Create | lmdb.IntegerKey

// indexTableFlags is shared by the five secondary index tables: integer keys, fixed-width
// 8-byte duplicate values sorted as integers, appended in (key, value) order during ingest.
const indexTableFlags = lmdb.Create | lmdb.IntegerKey | lmdb.DupSort | lmdb.DupFixed | lmdb.IntegerDup

// Database is an opened osmx file: an LMDB environment with its 10 named tables bound for the
// lifetime of the Database.
type Database struct {
	env  *lmdb.Env
	dbis [10]lmdb.DBI
}

// Open opens the osmx file at path read-only and binds all ten table handles.
func Open(path string) (*Database, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create LMDB environment")
	}
	if err := env.SetMaxDBs(len(tableNames)); err != nil {
		return nil, errors.Wrap(err, "unable to set max DBs")
	}
	if err := env.Open(path, envFlags|lmdb.Readonly, 0644); err != nil {
		return nil, errors.Wrapf(err, "unable to open osmx database %s", path)
	}

	db := &Database{env: env}
	err = env.View(func(txn *lmdb.Txn) error {
		return db.bindTables(txn, false)
	})
	if err != nil {
		env.Close()
		return nil, errors.Wrapf(err, "unable to open tables of %s", path)
	}
	return db, nil
}

// Create creates a new osmx file at path and binds all ten table handles. It is used by ingest
// only; the read API always goes through Open.
func Create(path string, mapSize int64) (*Database, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create LMDB environment")
	}
	if err := env.SetMaxDBs(len(tableNames)); err != nil {
		return nil, errors.Wrap(err, "unable to set max DBs")
	}
	if err := env.SetMapSize(mapSize); err != nil {
		return nil, errors.Wrap(err, "unable to set map size")
	}
	if err := env.Open(path, envFlags, 0644); err != nil {
		return nil, errors.Wrapf(err, "unable to create osmx database %s", path)
	}

	db := &Database{env: env}
	err = env.Update(func(txn *lmdb.Txn) error {
		return db.bindTables(txn, true)
	})
	if err != nil {
		env.Close()
		return nil, errors.Wrapf(err, "unable to create tables of %s", path)
	}
	return db, nil
}

// tableFlags returns the base open flags for table i, without lmdb.Create.
func tableFlags(i int) uint {
	switch i {
	case tblMetadata:
		return 0
	case tblCellNode, tblNodeWay, tblNodeRelation, tblWayRelation, tblRelationRelation:
		return indexTableFlags &^ lmdb.Create
	default:
		return elementTableFlags &^ lmdb.Create
	}
}

// bindTables opens (and, when create is true, creates) all ten tables within txn.
func (db *Database) bindTables(txn *lmdb.Txn, create bool) error {
	for i, name := range tableNames {
		flags := tableFlags(i)
		if create {
			flags |= lmdb.Create
		}
		dbi, err := txn.OpenDBI(name, flags)
		if err != nil {
			return errors.Wrapf(err, "unable to open table %s", name)
		}
		db.dbis[i] = dbi
	}
	return nil
}

// Close releases the underlying LMDB environment. It must be called after every Transaction
// derived from this Database has ended.
func (db *Database) Close() error {
	db.env.Close()
	return nil
}

// Begin starts a read-only snapshot transaction.
func (db *Database) Begin() (*Transaction, error) {
	txn, err := db.env.BeginTxn(nil, lmdb.Readonly)
	if err != nil {
		return nil, errors.Wrap(err, "unable to begin read transaction")
	}
	txn.RawRead = true
	return &Transaction{db: db, txn: txn}, nil
}

// Transaction is one LMDB snapshot read transaction bound to a Database. Every table handle
// obtained from it is only valid until Commit or Abort is called.
type Transaction struct {
	db  *Database
	txn *lmdb.Txn
}

// Commit ends the read transaction, releasing its LMDB reader slot. The name matches the
// lmdb-go binding's own API for read-only transactions.
func (t *Transaction) Commit() error {
	return t.txn.Commit()
}

// Abort ends the read transaction without requiring it to have completed cleanly.
func (t *Transaction) Abort() {
	t.txn.Abort()
}

func uint64Key(id uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return b[:]
}

func keyUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
