// Package sorter implements a bounded-memory external merge sort over (key, value) pairs. One
// Sorter is created per secondary index during ingest; a background goroutine owns the sort and
// spill, decoupled from the producer via a channel, so decoding the PBF stream never blocks on
// disk I/O except when the channel itself is full.
package sorter

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"osmx/util"
)

// SegmentSize is the number of Pairs held in memory before a sorter spills to a new segment
// file. It bounds ingest's RAM use; it is tunable and not a compatibility constraint.
const SegmentSize = 4_000_000

// pushChannelCapacity bounds how far the producer can run ahead of the sort worker before Push
// blocks. It trades a small amount of memory for decoupling the PBF decode loop from disk spill
// latency.
const pushChannelCapacity = 4096

// Pair is a (key, value) record. All five secondary indexes built during ingest (cell_node,
// node_way, node_relation, way_relation, relation_relation) push this same record shape through
// their own Sorter instance.
type Pair struct {
	Key   uint64
	Value uint64
}

func less(a, b Pair) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Value < b.Value
}

// Sorter accepts a stream of Pairs via Push and, after Close, yields them deduplicated and
// strictly ascending from Sorted. Push may only be called before Close; Sorted may only be
// called after Close, and only once.
type Sorter struct {
	name    string
	tempDir string

	pushCh chan Pair
	doneCh chan []string // segment file paths, sent once by the worker after its final flush

	count uint64 // pre-dedup pushes, advisory, owned by the caller goroutine only
}

// New starts a Sorter backed by segment files under tempDir, named
// "sort_<name>_segment.<n>.bin".
func New(tempDir, name string) *Sorter {
	s := &Sorter{
		name:    name,
		tempDir: tempDir,
		pushCh:  make(chan Pair, pushChannelCapacity),
		doneCh:  make(chan []string, 1),
	}
	go s.run()
	return s
}

func (s *Sorter) Name() string { return s.name }

// Push enqueues a record for sorting. It must not be called after Close.
func (s *Sorter) Push(p Pair) {
	s.pushCh <- p
	s.count++
}

// Count returns the number of pushes so far (pre-dedup, advisory only — for progress reporting).
func (s *Sorter) Count() uint64 { return s.count }

// Close signals that no more records will be pushed. It must be called exactly once.
func (s *Sorter) Close() {
	close(s.pushCh)
}

func (s *Sorter) run() {
	cache := make([]Pair, 0, SegmentSize)
	var segments []string

	for p := range s.pushCh {
		cache = append(cache, p)
		if len(cache) >= SegmentSize {
			segments = append(segments, s.flush(cache, len(segments)))
			cache = cache[:0]
		}
	}
	// Final flush, even if empty, keeps segment numbering and the merge logic uniform.
	segments = append(segments, s.flush(cache, len(segments)))

	s.doneCh <- segments
}

func (s *Sorter) flush(cache []Pair, segmentIndex int) string {
	sort.Slice(cache, func(i, j int) bool { return less(cache[i], cache[j]) })

	path := filepath.Join(s.tempDir, fmt.Sprintf("sort_%s_segment.%d.bin", s.name, segmentIndex))
	file, err := os.Create(path)
	if err != nil {
		util.LogFatalBug("sorter %q: unable to create segment file %s: %v", s.name, path, err)
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, 1<<20)
	var buf [16]byte
	for _, p := range cache {
		binary.LittleEndian.PutUint64(buf[0:8], p.Key)
		binary.LittleEndian.PutUint64(buf[8:16], p.Value)
		if _, err := w.Write(buf[:]); err != nil {
			util.LogFatalBug("sorter %q: unable to write segment file %s: %v", s.name, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		util.LogFatalBug("sorter %q: unable to flush segment file %s: %v", s.name, path, err)
	}

	return path
}

// Sorted blocks until the background worker has flushed its last segment, then returns a lazy,
// deduplicated, strictly-ascending sequence of every Pair ever pushed. It must be called after
// Close, and consumes the Sorter: the segment files are left on disk for the caller to remove
// along with the rest of the run's temp directory.
func (s *Sorter) Sorted() iter.Seq[Pair] {
	segments := <-s.doneCh

	return func(yield func(Pair) bool) {
		readers := make([]*bufio.Reader, len(segments))
		files := make([]*os.File, len(segments))
		for i, path := range segments {
			f, err := os.Open(path)
			if err != nil {
				util.LogFatalBug("sorter %q: unable to reopen segment %s: %v", s.name, path, err)
			}
			files[i] = f
			readers[i] = bufio.NewReaderSize(f, 1<<20)
		}
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()

		h := &pairHeap{}
		for i, r := range readers {
			if p, ok := readPair(s.name, r); ok {
				heap.Push(h, heapItem{pair: p, segment: i})
			}
		}

		var prev Pair
		hasPrev := false
		for h.Len() > 0 {
			item := heap.Pop(h).(heapItem)
			if !hasPrev || item.pair != prev {
				if !yield(item.pair) {
					return
				}
				prev, hasPrev = item.pair, true
			}
			if next, ok := readPair(s.name, readers[item.segment]); ok {
				heap.Push(h, heapItem{pair: next, segment: item.segment})
			}
		}
	}
}

func readPair(sorterName string, r *bufio.Reader) (Pair, bool) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return Pair{}, false
		}
		util.LogFatalBug("sorter %q: corrupt segment, short record: %v", sorterName, err)
	}
	return Pair{
		Key:   binary.LittleEndian.Uint64(buf[0:8]),
		Value: binary.LittleEndian.Uint64(buf[8:16]),
	}, true
}

type heapItem struct {
	pair    Pair
	segment int
}

// pairHeap is a container/heap min-heap of (pair, source segment) ordered by the Pair sort
// order. Ties within the same key are ordered by value, as the secondary indexes require.
type pairHeap []heapItem

func (h pairHeap) Len() int            { return len(h) }
func (h pairHeap) Less(i, j int) bool  { return less(h[i].pair, h[j].pair) }
func (h pairHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *pairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
