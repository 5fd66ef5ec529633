// Package spatial wraps the S2 cell cover used to build and query the cell_node spatial index.
// The cover parameters here are part of the on-disk compatibility contract (see the table
// definitions in package osmx): changing them changes which node ids a bounding-box query
// returns, so they must not drift.
package spatial

import (
	"sync"

	"github.com/golang/geo/s2"
)

// CellIndexLevel is the S2 cell level node locations are indexed at (~150m across at the
// equator). It is fixed; every cell id stored in the cell_node table is at this level.
const CellIndexLevel = 16

var (
	covererOnce sync.Once
	coverer     *s2.RegionCoverer
)

func getCoverer() *s2.RegionCoverer {
	covererOnce.Do(func() {
		coverer = &s2.RegionCoverer{
			MinLevel: 4,
			MaxLevel: CellIndexLevel,
			LevelMod: 1,
			MaxCells: 8,
		}
	})
	return coverer
}

// CellOf returns the level-16 S2 cell id containing the given coordinate.
func CellOf(lat, lon float64) uint64 {
	ll := s2.LatLngFromDegrees(lat, lon)
	return uint64(s2.CellIDFromLatLng(ll).Parent(CellIndexLevel))
}

// CellRange is a half-open range of level-16 cell ids, [Start, End).
type CellRange struct {
	Start uint64
	End   uint64
}

// Region is a cover of a lat/lon rectangle by a bounded set of S2 cells at various levels. It is
// the unit the spatial index is queried with.
type Region struct {
	cells s2.CellUnion
}

// NewRegion covers the rectangle [west,east] x [south,north] (in degrees) using the fixed
// coverer parameters (min_level=4, max_level=16, level_mod=1, max_cells=8).
func NewRegion(west, south, east, north float64) Region {
	rect := s2.RectFromDegrees(south, west, north, east)
	return Region{cells: getCoverer().Covering(rect)}
}

// Ranges returns, for every cell in the region's cover, the half-open range of level-16 child
// cell ids it spans. A cell_node cursor range-scan of these ranges returns every node id whose
// cell lies in the region, plus possibly some near misses at cover boundaries (a superset, never
// a subset — geometric post-filtering is the caller's responsibility, per spec).
func (r Region) Ranges() []CellRange {
	ranges := make([]CellRange, 0, len(r.cells))
	for _, cell := range r.cells {
		ranges = append(ranges, CellRange{
			Start: uint64(cell.ChildBeginAtLevel(CellIndexLevel)),
			End:   uint64(cell.ChildEndAtLevel(CellIndexLevel)),
		})
	}
	return ranges
}
