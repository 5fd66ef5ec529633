package osmx

import (
	"path/filepath"
	"sort"
	"testing"

	"osmx/spatial"
	"osmx/util"
)

func buildTestDatabase(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.osmx")

	db, err := Create(path, 64<<20)
	util.AssertNil(t, err)

	w, err := db.NewWriter()
	util.AssertNil(t, err)

	util.AssertNil(t, w.PutMetadataString(MetaImportFilename, "hamburg-latest.osm.pbf"))
	util.AssertNil(t, w.PutMetadataInt64(MetaOsmosisReplicationStamp, 1700000000))

	util.AssertNil(t, w.PutLocation(1, LocationBuilder(9.99, 53.55, 1)))
	util.AssertNil(t, w.PutLocation(2, LocationBuilder(9.991, 53.551, 1)))
	util.AssertNil(t, w.PutLocation(3, LocationBuilder(9.992, 53.552, 1)))
	util.AssertNil(t, w.PutNode(1, NodeBuilder([]string{"amenity"}, []string{"cafe"})))

	util.AssertNil(t, w.PutWay(10, WayBuilder([]string{"highway"}, []string{"residential"}, []uint64{1, 2, 3})))

	util.AssertNil(t, w.PutRelation(100, RelationBuilder(
		[]string{"type"}, []string{"route"},
		[]RelationMember{{Kind: 1, Ref: 10, Role: ""}},
	)))

	// cell_node is pushed in real S2 cell order (not the locations table's coordinates, which are
	// unrelated to this fixture) so FindInRegion can be exercised against an actual spatial.Region.
	nearCell := spatial.CellOf(53.55, 9.99)
	farCell := spatial.CellOf(0, 0)
	type cellPush struct{ cell, node uint64 }
	pushes := []cellPush{{nearCell, 1}, {nearCell, 2}, {farCell, 3}}
	sort.Slice(pushes, func(i, j int) bool {
		if pushes[i].cell != pushes[j].cell {
			return pushes[i].cell < pushes[j].cell
		}
		return pushes[i].node < pushes[j].node
	})
	for _, p := range pushes {
		util.AssertNil(t, w.PutCellNode(p.cell, p.node))
	}

	util.AssertNil(t, w.PutNodeWay(1, 10))
	util.AssertNil(t, w.PutNodeWay(2, 10))
	util.AssertNil(t, w.PutNodeWay(3, 10))

	util.AssertNil(t, w.PutWayRelation(10, 100))

	util.AssertNil(t, w.Commit())

	return db
}

func TestDatabase_locationsRoundTrip(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	loc, found, err := txn.Locations().Get(2)
	util.AssertNil(t, err)
	util.AssertTrue(t, found)
	util.AssertApprox(t, 9.991, loc.Lon(), 1e-6)
	util.AssertApprox(t, 53.551, loc.Lat(), 1e-6)

	_, found, err = txn.Locations().Get(999)
	util.AssertNil(t, err)
	util.AssertFalse(t, found)
}

func TestDatabase_elementTableAllIsAscending(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	var ids []uint64
	for id := range txn.Locations().All() {
		ids = append(ids, id)
	}
	util.AssertEqual(t, []uint64{1, 2, 3}, ids)
}

func TestDatabase_spatialIndexFindsNodesInRegion(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	region := spatial.NewRegion(9.98, 53.54, 10.00, 53.56)

	got := map[uint64]bool{}
	for id := range txn.CellNodes().FindInRegion(region) {
		got[id] = true
	}
	util.AssertTrue(t, got[1])
	util.AssertTrue(t, got[2])
	util.AssertFalse(t, got[3])
}

func TestDatabase_joinTableReturnsReferencingIDs(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	var ways []uint64
	for id := range txn.NodeWays().Get(1) {
		ways = append(ways, id)
	}
	util.AssertEqual(t, []uint64{10}, ways)

	var empty []uint64
	for id := range txn.NodeWays().Get(999) {
		empty = append(empty, id)
	}
	util.AssertEqual(t, 0, len(empty))
}

func TestDatabase_metadataRoundTrips(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	name, found, err := txn.Metadata().ImportFilename()
	util.AssertNil(t, err)
	util.AssertTrue(t, found)
	util.AssertEqual(t, "hamburg-latest.osm.pbf", name)

	stamp, found, err := txn.Metadata().ReplicationTimestamp()
	util.AssertNil(t, err)
	util.AssertTrue(t, found)
	util.AssertEqual(t, int64(1700000000), stamp)
}

func TestDatabase_statsReportEntryCountsInFixedOrder(t *testing.T) {
	db := buildTestDatabase(t)
	defer db.Close()

	txn, err := db.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	stats, err := txn.Stats()
	util.AssertNil(t, err)
	util.AssertEqual(t, len(tableNames)-1, len(stats)) // metadata is excluded from stat output

	wantOrder := []string{"locations", "nodes", "ways", "relations", "cell_node", "node_way",
		"node_relation", "way_relation", "relation_relation"}
	gotOrder := make([]string, len(stats))
	for i, s := range stats {
		gotOrder[i] = s.Name
	}
	util.AssertEqual(t, wantOrder, gotOrder)

	byName := map[string]uint64{}
	for _, s := range stats {
		byName[s.Name] = s.Entries
		// node_relation and relation_relation get no entries in this fixture; an empty table
		// occupies no pages.
		util.AssertEqual(t, s.Entries > 0, s.TotalPages > 0)
		util.AssertEqual(t, s.Branch+s.Leaf+s.Overflow, s.TotalPages)
	}
	_, hasMetadata := byName["metadata"]
	util.AssertFalse(t, hasMetadata)

	util.AssertEqual(t, uint64(3), byName["locations"])
	util.AssertEqual(t, uint64(1), byName["nodes"])
	util.AssertEqual(t, uint64(1), byName["ways"])
	util.AssertEqual(t, uint64(1), byName["relations"])
	util.AssertEqual(t, uint64(3), byName["cell_node"])
}

func TestDatabase_readTransactionIsIndependentOfWriter(t *testing.T) {
	// Data committed through a writer and its Database stays readable after that Database is
	// closed and the file is reopened read-only with Open (as opposed to reading through the
	// in-process Create+NewWriter+Commit handle, as the tests above do).
	path := filepath.Join(t.TempDir(), "test.osmx")
	db, err := Create(path, 64<<20)
	util.AssertNil(t, err)
	w, err := db.NewWriter()
	util.AssertNil(t, err)
	util.AssertNil(t, w.PutLocation(1, LocationBuilder(0, 0, 1)))
	util.AssertNil(t, w.Commit())
	db.Close()

	reopened, err := Open(path)
	util.AssertNil(t, err)
	defer reopened.Close()

	txn, err := reopened.Begin()
	util.AssertNil(t, err)
	defer txn.Commit()

	_, found, err := txn.Locations().Get(1)
	util.AssertNil(t, err)
	util.AssertTrue(t, found)
}
