package spatial

import (
	"testing"

	"osmx/util"
)

func TestCellOf_isStableForSameCoordinate(t *testing.T) {
	a := CellOf(53.5511, 9.9937)
	b := CellOf(53.5511, 9.9937)
	util.AssertEqual(t, a, b)
}

func TestCellOf_differsForDistantCoordinates(t *testing.T) {
	hamburg := CellOf(53.5511, 9.9937)
	tokyo := CellOf(35.6762, 139.6503)
	util.AssertFalse(t, hamburg == tokyo)
}

func TestRegion_rangesCoverTargetCell(t *testing.T) {
	lat, lon := 53.5511, 9.9937
	cell := CellOf(lat, lon)

	region := NewRegion(9.99, 53.55, 9.999, 53.555)

	found := false
	for _, r := range region.Ranges() {
		if cell >= r.Start && cell < r.End {
			found = true
			break
		}
	}
	util.AssertTrue(t, found)
}

// MaxCells is not a hard limit: a region spanning more level-4 cells than MaxCells is covered by
// all of them, since MinLevel forbids larger cells. This region lies within a few level-4 cells, so
// the coverer keeps to MaxCells.
func TestRegion_ranges_neverExceedMaxCells(t *testing.T) {
	region := NewRegion(9.5, 53.0, 10.5, 54.0)
	util.AssertTrue(t, len(region.Ranges()) <= 8)
}
