package osmx

import (
	"github.com/pkg/errors"
)

// TableStat is one row of the `stat` CLI subcommand's output, mirroring LMDB's own MDB_stat
// fields (cheap to read: LMDB reads the table's root page, not a full scan).
type TableStat struct {
	Name       string
	Entries    uint64
	SizeKiB    uint64
	TotalPages uint64
	Branch     uint64
	Leaf       uint64
	Overflow   uint64
}

// Stats returns one TableStat per table, in the fixed order spec.md §6 requires: locations,
// nodes, ways, relations, cell_node, node_way, node_relation, way_relation, relation_relation.
// metadata is not part of the stat output.
func (t *Transaction) Stats() ([]TableStat, error) {
	names := tableNames[1:] // skip metadata
	stats := make([]TableStat, len(names))
	for i, name := range names {
		s, err := t.txn.Stat(t.db.dbis[i+1])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read stats for table %s", name)
		}
		totalPages := uint64(s.BranchPages) + uint64(s.LeafPages) + uint64(s.OverflowPages)
		stats[i] = TableStat{
			Name:       name,
			Entries:    uint64(s.Entries),
			SizeKiB:    uint64(s.PSize) * totalPages / 1024,
			TotalPages: totalPages,
			Branch:     uint64(s.BranchPages),
			Leaf:       uint64(s.LeafPages),
			Overflow:   uint64(s.OverflowPages),
		}
	}
	return stats, nil
}
