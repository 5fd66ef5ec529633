package osm

import (
	"fmt"
)

// ElementKind is an enum for the three OSM element kinds. It doubles as the on-disk tag byte
// for relation members (see osmx.RelationMember), so its numeric values are a compatibility
// surface and must not be reordered.
type ElementKind uint8

const (
	KindNode ElementKind = iota
	KindWay
	KindRelation
)

func (k ElementKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	panic(fmt.Sprintf("[!UNKNOWN ElementKind %d]", k))
}
