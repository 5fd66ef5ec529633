package sorter

import (
	"testing"

	"osmx/util"
)

func collect(s *Sorter) []Pair {
	var out []Pair
	for p := range s.Sorted() {
		out = append(out, p)
	}
	return out
}

func TestSorter_sortsAscending(t *testing.T) {
	s := New(t.TempDir(), "test")
	for _, p := range []Pair{{3, 1}, {1, 5}, {2, 2}, {1, 1}} {
		s.Push(p)
	}
	s.Close()

	got := collect(s)
	want := []Pair{{1, 1}, {1, 5}, {2, 2}, {3, 1}}
	util.AssertEqual(t, len(want), len(got))
	for i := range want {
		util.AssertEqual(t, want[i], got[i])
	}
}

// TestSorter_dedupesExactDuplicates mirrors the example from scenario S5: pushing
// (1,2),(1,1),(2,1),(1,2) must yield (1,1),(1,2),(2,1) - the repeated (1,2) collapses to one.
func TestSorter_dedupesExactDuplicates(t *testing.T) {
	s := New(t.TempDir(), "test")
	for _, p := range []Pair{{1, 2}, {1, 1}, {2, 1}, {1, 2}} {
		s.Push(p)
	}
	s.Close()

	got := collect(s)
	want := []Pair{{1, 1}, {1, 2}, {2, 1}}
	util.AssertEqual(t, len(want), len(got))
	for i := range want {
		util.AssertEqual(t, want[i], got[i])
	}
}

func TestSorter_emptyInputYieldsNothing(t *testing.T) {
	s := New(t.TempDir(), "test")
	s.Close()
	util.AssertEqual(t, 0, len(collect(s)))
}

// TestSorter_spansMultipleSegments exercises the spill-to-disk path by pushing more records than
// fit in a single in-memory segment, with duplicates straddling the boundary.
func TestSorter_spansMultipleSegments(t *testing.T) {
	s := New(t.TempDir(), "test")

	const n = SegmentSize + 1000
	for i := 0; i < n; i++ {
		key := uint64(i % 500)
		// The last 1000 pushes repeat the first 1000 pairs, which went into the first segment.
		s.Push(Pair{Key: key, Value: uint64(i/500) % (SegmentSize / 500)})
	}
	s.Close()

	got := collect(s)
	util.AssertEqual(t, SegmentSize, len(got))
	// Ascending and internally consistent: every key's values are contiguous and increasing.
	for i := 1; i < len(got); i++ {
		util.AssertTrue(t, less(got[i-1], got[i]))
	}
}

func TestSorter_countTracksPrededupPushes(t *testing.T) {
	s := New(t.TempDir(), "test")
	for _, p := range []Pair{{1, 2}, {1, 1}, {2, 1}, {1, 2}} {
		s.Push(p)
	}
	util.AssertEqual(t, uint64(4), s.Count())
	s.Close()
	collect(s)
}
