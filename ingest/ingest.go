// Package ingest implements the single-pass PBF-to-osmx conversion: it streams elements from the
// input file, appends them to the four primary tables in arrival order, and feeds five
// external-sorter instances that are drained into the secondary index tables once the stream
// ends.
package ingest

import (
	"os"
	"time"

	"github.com/hauke96/sigolo/v2"
	gosm "github.com/paulmach/osm"
	"github.com/pkg/errors"

	myosm "osmx/osm"
	"osmx/osmx"
	"osmx/sorter"
	"osmx/spatial"
	"osmx/util"
)

// mapSize is the fixed LMDB map size every osmx file is created with.
const mapSize = 50 << 30

// Run converts the PBF file at inputPath into a new osmx database at outputPath. On any error
// the database is left without a commit; the scratch directory is removed regardless.
func Run(inputPath, outputPath string) error {
	tempDir := outputPath + "-tmp"
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create scratch directory %s", tempDir)
	}
	defer os.RemoveAll(tempDir)

	db, err := osmx.Create(outputPath, mapSize)
	if err != nil {
		return errors.Wrapf(err, "unable to create osmx database %s", outputPath)
	}
	defer db.Close()

	writer, err := db.NewWriter()
	if err != nil {
		return errors.Wrap(err, "unable to begin write transaction")
	}

	h := newHandler(writer, tempDir, inputPath)

	reader := myosm.NewReader()
	if err := reader.Read(inputPath, h); err != nil {
		writer.Abort()
		return errors.Wrapf(err, "unable to read %s", inputPath)
	}

	if err := h.drainSorters(); err != nil {
		writer.Abort()
		return errors.Wrap(err, "unable to drain secondary indexes")
	}

	if err := writer.Commit(); err != nil {
		return errors.Wrap(err, "unable to commit ingest transaction")
	}

	return nil
}

// handler adapts the PBF scan loop to table writes and sorter pushes. One handler is used per
// run; it is not reused across calls to Run.
type handler struct {
	writer    *osmx.Writer
	inputPath string

	cellNode         *sorter.Sorter
	nodeWay          *sorter.Sorter
	nodeRelation     *sorter.Sorter
	wayRelation      *sorter.Sorter
	relationRelation *sorter.Sorter

	startTime time.Time
}

func newHandler(writer *osmx.Writer, tempDir, inputPath string) *handler {
	return &handler{
		writer:           writer,
		inputPath:        inputPath,
		cellNode:         sorter.New(tempDir, "cell_node"),
		nodeWay:          sorter.New(tempDir, "node_way"),
		nodeRelation:     sorter.New(tempDir, "node_relation"),
		wayRelation:      sorter.New(tempDir, "way_relation"),
		relationRelation: sorter.New(tempDir, "relation_relation"),
	}
}

func (h *handler) Name() string { return "ingest" }

func (h *handler) Init(header myosm.Header) error {
	h.startTime = time.Now()

	if err := h.writer.PutMetadataString(osmx.MetaImportFilename, h.inputPath); err != nil {
		return err
	}

	// The original writes this same key a second time under a textually identical condition,
	// which is a no-op here since it is the same key with the same source value.
	if !header.ReplicationTimestamp.IsZero() {
		if err := h.writer.PutMetadataInt64(osmx.MetaOsmosisReplicationStamp, header.ReplicationTimestamp.Unix()); err != nil {
			return err
		}
	}

	return nil
}

func tagSlices(tags gosm.Tags) (keys, values []string) {
	keys = make([]string, len(tags))
	values = make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = tag.Key
		values[i] = tag.Value
	}
	return keys, values
}

func (h *handler) HandleNode(node *gosm.Node) error {
	id := uint64(node.ID)

	version := uint32(0)
	if node.Version > 0 {
		version = uint32(node.Version)
	}
	if err := h.writer.PutLocation(id, osmx.LocationBuilder(node.Lon, node.Lat, version)); err != nil {
		return err
	}

	cell := spatial.CellOf(node.Lat, node.Lon)
	h.cellNode.Push(sorter.Pair{Key: cell, Value: id})

	if len(node.Tags) == 0 {
		return nil
	}

	keys, values := tagSlices(node.Tags)
	return h.writer.PutNode(id, osmx.NodeBuilder(keys, values))
}

func (h *handler) HandleWay(way *gosm.Way) error {
	id := uint64(way.ID)
	keys, values := tagSlices(way.Tags)

	nodeIDs := make([]uint64, len(way.Nodes))
	for i, n := range way.Nodes {
		nodeIDs[i] = uint64(n.ID)
	}

	if err := h.writer.PutWay(id, osmx.WayBuilder(keys, values, nodeIDs)); err != nil {
		return err
	}

	seen := make(map[uint64]struct{}, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if _, ok := seen[nodeID]; ok {
			continue
		}
		seen[nodeID] = struct{}{}
		h.nodeWay.Push(sorter.Pair{Key: nodeID, Value: id})
	}

	return nil
}

func (h *handler) HandleRelation(relation *gosm.Relation) error {
	id := uint64(relation.ID)
	keys, values := tagSlices(relation.Tags)

	members := make([]osmx.RelationMember, len(relation.Members))
	for i, m := range relation.Members {
		members[i] = osmx.RelationMember{
			Kind: memberKind(m.Type),
			Ref:  uint64(m.Ref),
			Role: m.Role,
		}
	}

	if err := h.writer.PutRelation(id, osmx.RelationBuilder(keys, values, members)); err != nil {
		return err
	}

	seenNodes := map[uint64]struct{}{}
	seenWays := map[uint64]struct{}{}
	seenRelations := map[uint64]struct{}{}

	for _, m := range relation.Members {
		ref := uint64(m.Ref)
		switch m.Type {
		case gosm.NodeType:
			if _, ok := seenNodes[ref]; !ok {
				seenNodes[ref] = struct{}{}
				h.nodeRelation.Push(sorter.Pair{Key: ref, Value: id})
			}
		case gosm.WayType:
			if _, ok := seenWays[ref]; !ok {
				seenWays[ref] = struct{}{}
				h.wayRelation.Push(sorter.Pair{Key: ref, Value: id})
			}
		case gosm.RelationType:
			if _, ok := seenRelations[ref]; !ok {
				seenRelations[ref] = struct{}{}
				h.relationRelation.Push(sorter.Pair{Key: ref, Value: id})
			}
		}
	}

	return nil
}

func (h *handler) Done() error {
	sigolo.Infof("Finished scanning elements in %s, draining secondary indexes", time.Since(h.startTime))
	return nil
}

func memberKind(t gosm.MemberType) myosm.ElementKind {
	switch t {
	case gosm.NodeType:
		return myosm.KindNode
	case gosm.WayType:
		return myosm.KindWay
	case gosm.RelationType:
		return myosm.KindRelation
	default:
		util.LogFatalBug("unknown relation member type %q", t)
		return myosm.KindNode
	}
}

// sorterJob pairs a named sorter with the Writer method that drains it.
type sorterJob struct {
	name string
	s    *sorter.Sorter
	put  func(key, value uint64) error
}

// drainSorters closes and merges the five sorters in the fixed order the compatibility contract
// requires, writing each into its index table via APPEND_DUP.
func (h *handler) drainSorters() error {
	jobs := []sorterJob{
		{"cell_node", h.cellNode, h.writer.PutCellNode},
		{"node_way", h.nodeWay, h.writer.PutNodeWay},
		{"node_relation", h.nodeRelation, h.writer.PutNodeRelation},
		{"way_relation", h.wayRelation, h.writer.PutWayRelation},
		{"relation_relation", h.relationRelation, h.writer.PutRelationRelation},
	}

	for _, j := range jobs {
		j.s.Close()
		sigolo.Infof("Merging %s index (%d entries pushed)", j.name, j.s.Count())
		for p := range j.s.Sorted() {
			if err := j.put(p.Key, p.Value); err != nil {
				return errors.Wrapf(err, "unable to write %s index entry", j.name)
			}
		}
	}

	return nil
}
