package osmx

import (
	"encoding/binary"
	"testing"

	"osmx/util"
)

func TestLocation_roundTrips(t *testing.T) {
	raw := LocationBuilder(9.9937, 53.5511, 3)
	loc := newLocation(raw)

	util.AssertApprox(t, 9.9937, loc.Lon(), 1e-6)
	util.AssertApprox(t, 53.5511, loc.Lat(), 1e-6)
	util.AssertEqual(t, uint32(3), loc.Version())
}

func TestLocation_negativeCoordinatesRoundTrip(t *testing.T) {
	raw := LocationBuilder(-122.4194, -37.8136, 1)
	loc := newLocation(raw)

	util.AssertApprox(t, -122.4194, loc.Lon(), 1e-6)
	util.AssertApprox(t, -37.8136, loc.Lat(), 1e-6)
}

// TestLocation_roundsToNearestNotTruncates covers a coordinate reconstructed from a stored raw
// i32 (as a reader of an existing database would produce): dividing by 1e7 and multiplying back
// does not land exactly on the original integer in floating point, so the encoder must round to
// the nearest 1e-7 degree rather than truncate toward zero.
func TestLocation_roundsToNearestNotTruncates(t *testing.T) {
	const rawLonInt int32 = -800729064
	lon := float64(rawLonInt) / CoordPrecision

	raw := LocationBuilder(lon, 0, 0)
	gotLonInt := int32(binary.LittleEndian.Uint32(raw[0:4]))
	util.AssertEqual(t, rawLonInt, gotLonInt)
}

func TestNode_tagsRoundTrip(t *testing.T) {
	keys := []string{"amenity", "name"}
	values := []string{"cafe", "Cafe Nero"}

	raw := NodeBuilder(keys, values)
	node := newNode(raw)

	gotKeys, gotValues := node.Tags()
	util.AssertEqual(t, len(keys), len(gotKeys))
	for i := range keys {
		util.AssertEqual(t, keys[i], gotKeys[i])
		util.AssertEqual(t, values[i], gotValues[i])
	}

	v, ok := node.Tag("amenity")
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "cafe", v)

	_, ok = node.Tag("missing")
	util.AssertFalse(t, ok)
}

func TestNode_noTagsRoundTrips(t *testing.T) {
	raw := NodeBuilder(nil, nil)
	node := newNode(raw)
	keys, values := node.Tags()
	util.AssertEqual(t, 0, len(keys))
	util.AssertEqual(t, 0, len(values))
}

func TestWay_nodesRoundTrip(t *testing.T) {
	nodeIDs := []uint64{10, 20, 30, 20}
	raw := WayBuilder([]string{"highway"}, []string{"residential"}, nodeIDs)
	way := newWay(raw)

	v, ok := way.Tag("highway")
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "residential", v)

	util.AssertEqual(t, len(nodeIDs), way.NodeCount())

	var got []uint64
	for id := range way.Nodes() {
		got = append(got, id)
	}
	util.AssertEqual(t, len(nodeIDs), len(got))
	for i := range nodeIDs {
		util.AssertEqual(t, nodeIDs[i], got[i])
	}
}

func TestWay_isClosed(t *testing.T) {
	closed := newWay(WayBuilder(nil, nil, []uint64{1, 2, 3, 1}))
	util.AssertTrue(t, closed.IsClosed())

	open := newWay(WayBuilder(nil, nil, []uint64{1, 2, 3}))
	util.AssertFalse(t, open.IsClosed())

	empty := newWay(WayBuilder(nil, nil, nil))
	util.AssertFalse(t, empty.IsClosed())

	single := newWay(WayBuilder(nil, nil, []uint64{5}))
	util.AssertTrue(t, single.IsClosed())
}

func TestRelation_membersRoundTrip(t *testing.T) {
	members := []RelationMember{
		{Kind: 0, Ref: 1, Role: "inner"},
		{Kind: 1, Ref: 2, Role: ""},
		{Kind: 2, Ref: 3, Role: "subarea"},
	}
	raw := RelationBuilder([]string{"type"}, []string{"multipolygon"}, members)
	rel := newRelation(raw)

	v, ok := rel.Tag("type")
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "multipolygon", v)

	var got []RelationMember
	for m := range rel.Members() {
		got = append(got, m)
	}
	util.AssertEqual(t, len(members), len(got))
	for i := range members {
		util.AssertEqual(t, members[i].Kind, got[i].Kind)
		util.AssertEqual(t, members[i].Ref, got[i].Ref)
		util.AssertEqual(t, members[i].Role, got[i].Role)
	}
}

func TestRelation_noMembersRoundTrips(t *testing.T) {
	raw := RelationBuilder(nil, nil, nil)
	rel := newRelation(raw)
	var got []RelationMember
	for m := range rel.Members() {
		got = append(got, m)
	}
	util.AssertEqual(t, 0, len(got))
}
