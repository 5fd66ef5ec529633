// Package osmx implements the osmx database: a random-access, snapshot-consistent on-disk store
// for OSM elements, backed by LMDB. This file holds the record codecs: each record type wraps a
// []byte borrowed from an LMDB value for the lifetime of the transaction that produced it, and
// decodes it lazily. Location fields, way node ids and IsClosed are read in place without
// allocation; Tags, Tag and Members copy the tag strings and member roles into newly allocated
// strings and slices on every call.
package osmx

import (
	"encoding/binary"
	"iter"
	"math"

	"github.com/pkg/errors"

	myosm "osmx/osm"
)

// CoordPrecision is the fixed-point scale factor applied to latitude/longitude degrees when
// stored in a Location record.
const CoordPrecision = 1e7

// Location is a 12-byte fixed record: lon:i32, lat:i32 (both degrees * 1e7), version:u32.
type Location struct {
	raw []byte
}

func newLocation(raw []byte) Location {
	if len(raw) != 12 {
		panic(errors.Errorf("corrupt location record: want 12 bytes, got %d", len(raw)))
	}
	return Location{raw: raw}
}

func (l Location) Lon() float64 {
	return float64(int32(binary.LittleEndian.Uint32(l.raw[0:4]))) / CoordPrecision
}

func (l Location) Lat() float64 {
	return float64(int32(binary.LittleEndian.Uint32(l.raw[4:8]))) / CoordPrecision
}

func (l Location) Version() uint32 {
	return binary.LittleEndian.Uint32(l.raw[8:12])
}

// LocationBuilder encodes a Location into its fixed 12-byte wire form. Coordinates are rounded to
// the nearest 1e-7 degree, not truncated: Go's float-to-int conversion truncates toward zero, and
// since lon*1e7/lat*1e7 frequently land a hair below the intended integer (e.g. a coordinate
// reconstructed from a stored raw value), truncating would silently corrupt the low-order digit.
func LocationBuilder(lon, lat float64, version uint32) []byte {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], uint32(int32(math.Round(lon*CoordPrecision))))
	binary.LittleEndian.PutUint32(data[4:8], uint32(int32(math.Round(lat*CoordPrecision))))
	binary.LittleEndian.PutUint32(data[8:12], version)
	return data
}

// decodeTagList reads the shared tag-list wire format: u32 count, then count length-prefixed (u16)
// UTF-8 strings alternating key/value. It returns the number of bytes consumed.
func decodeTagList(raw []byte) (keys, values []string, consumed int) {
	count := binary.LittleEndian.Uint32(raw[0:4])
	offset := 4
	strs := make([]string, count)
	for i := uint32(0); i < count; i++ {
		strLen := int(binary.LittleEndian.Uint16(raw[offset : offset+2]))
		offset += 2
		strs[i] = string(raw[offset : offset+strLen])
		offset += strLen
	}
	keys = make([]string, 0, count/2)
	values = make([]string, 0, count/2)
	for i := 0; i+1 < int(count); i += 2 {
		keys = append(keys, strs[i])
		values = append(values, strs[i+1])
	}
	return keys, values, offset
}

func encodedTagListSize(keys, values []string) int {
	size := 4
	for i := range keys {
		size += 2 + len(keys[i])
		size += 2 + len(values[i])
	}
	return size
}

func putTagList(data []byte, keys, values []string) int {
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(keys)*2))
	offset := 4
	for i := range keys {
		offset = putTagString(data, offset, keys[i])
		offset = putTagString(data, offset, values[i])
	}
	return offset
}

func putTagString(data []byte, offset int, s string) int {
	binary.LittleEndian.PutUint16(data[offset:offset+2], uint16(len(s)))
	offset += 2
	copy(data[offset:], s)
	return offset + len(s)
}

// Node is a tagged node's record: a tag list. Untagged nodes are never stored in the nodes
// table, only in locations.
type Node struct {
	raw []byte
}

func newNode(raw []byte) Node {
	return Node{raw: raw}
}

// Tags returns the node's key/value pairs in storage order.
func (n Node) Tags() (keys, values []string) {
	keys, values, _ = decodeTagList(n.raw)
	return keys, values
}

// Tag returns the value for key and whether it was present.
func (n Node) Tag(key string) (string, bool) {
	keys, values := n.Tags()
	for i, k := range keys {
		if k == key {
			return values[i], true
		}
	}
	return "", false
}

// NodeBuilder encodes a tagged node's wire record.
func NodeBuilder(keys, values []string) []byte {
	data := make([]byte, encodedTagListSize(keys, values))
	putTagList(data, keys, values)
	return data
}

// Way is a way record: a tag list followed by an ordered node id list (duplicates allowed).
type Way struct {
	raw        []byte
	tagsEnd    int
	nodesStart int
}

func newWay(raw []byte) Way {
	_, _, tagsEnd := decodeTagList(raw)
	return Way{raw: raw, tagsEnd: tagsEnd, nodesStart: tagsEnd + 4}
}

func (w Way) Tags() (keys, values []string) {
	keys, values, _ = decodeTagList(w.raw)
	return keys, values
}

func (w Way) Tag(key string) (string, bool) {
	keys, values := w.Tags()
	for i, k := range keys {
		if k == key {
			return values[i], true
		}
	}
	return "", false
}

// NodeCount returns the number of node ids in the way.
func (w Way) NodeCount() int {
	return int(binary.LittleEndian.Uint32(w.raw[w.tagsEnd : w.tagsEnd+4]))
}

// NodeAt returns the i-th node id, 0-indexed.
func (w Way) NodeAt(i int) uint64 {
	offset := w.nodesStart + i*8
	return binary.LittleEndian.Uint64(w.raw[offset : offset+8])
}

// Nodes returns the way's ordered node ids as a lazy sequence.
func (w Way) Nodes() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		n := w.NodeCount()
		for i := 0; i < n; i++ {
			if !yield(w.NodeAt(i)) {
				return
			}
		}
	}
}

// IsClosed reports whether the way's first and last node ids are equal. A way with zero nodes is
// not closed; a way with exactly one node is self-closed (trivially true).
func (w Way) IsClosed() bool {
	n := w.NodeCount()
	if n == 0 {
		return false
	}
	if n == 1 {
		return true
	}
	return w.NodeAt(0) == w.NodeAt(n-1)
}

// WayBuilder encodes a way's wire record from its tags and ordered node ids.
func WayBuilder(keys, values []string, nodeIDs []uint64) []byte {
	tagSize := encodedTagListSize(keys, values)
	size := tagSize + 4 + len(nodeIDs)*8
	data := make([]byte, size)

	putTagList(data, keys, values)
	offset := tagSize
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(len(nodeIDs)))
	offset += 4
	for _, id := range nodeIDs {
		binary.LittleEndian.PutUint64(data[offset:offset+8], id)
		offset += 8
	}
	return data
}

// RelationMember is one (kind, ref, role) entry of a relation. Kind is the on-disk tag byte, the
// same myosm.ElementKind values (node=0, way=1, relation=2) a relation member's referenced id
// space is keyed by.
type RelationMember struct {
	Kind myosm.ElementKind
	Ref  uint64
	Role string
}

// Relation is a relation record: a tag list followed by an ordered member list.
type Relation struct {
	raw     []byte
	tagsEnd int
}

func newRelation(raw []byte) Relation {
	_, _, tagsEnd := decodeTagList(raw)
	return Relation{raw: raw, tagsEnd: tagsEnd}
}

func (r Relation) Tags() (keys, values []string) {
	keys, values, _ = decodeTagList(r.raw)
	return keys, values
}

func (r Relation) Tag(key string) (string, bool) {
	keys, values := r.Tags()
	for i, k := range keys {
		if k == key {
			return values[i], true
		}
	}
	return "", false
}

// Members returns the relation's ordered members as a lazy sequence.
func (r Relation) Members() iter.Seq[RelationMember] {
	return func(yield func(RelationMember) bool) {
		offset := r.tagsEnd
		count := binary.LittleEndian.Uint32(r.raw[offset : offset+4])
		offset += 4
		for i := uint32(0); i < count; i++ {
			kind := myosm.ElementKind(r.raw[offset])
			offset++
			ref := binary.LittleEndian.Uint64(r.raw[offset : offset+8])
			offset += 8
			roleLen := int(binary.LittleEndian.Uint16(r.raw[offset : offset+2]))
			offset += 2
			role := string(r.raw[offset : offset+roleLen])
			offset += roleLen
			if !yield(RelationMember{Kind: kind, Ref: ref, Role: role}) {
				return
			}
		}
	}
}

// RelationBuilder encodes a relation's wire record from its tags and ordered members.
func RelationBuilder(keys, values []string, members []RelationMember) []byte {
	tagSize := encodedTagListSize(keys, values)
	size := tagSize + 4
	for _, m := range members {
		size += 1 + 8 + 2 + len(m.Role)
	}
	data := make([]byte, size)

	putTagList(data, keys, values)
	offset := tagSize
	binary.LittleEndian.PutUint32(data[offset:offset+4], uint32(len(members)))
	offset += 4
	for _, m := range members {
		data[offset] = uint8(m.Kind)
		offset++
		binary.LittleEndian.PutUint64(data[offset:offset+8], m.Ref)
		offset += 8
		binary.LittleEndian.PutUint16(data[offset:offset+2], uint16(len(m.Role)))
		offset += 2
		copy(data[offset:], m.Role)
		offset += len(m.Role)
	}
	return data
}
