package osm

import (
	"context"
	"os"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/pkg/errors"
)

// Header carries the subset of the PBF header block that the database persists to its metadata
// table.
type Header struct {
	// ReplicationTimestamp is the wall-clock time the source data was current as of, as recorded
	// by the PBF header block. Zero when the header carries no replication timestamp.
	ReplicationTimestamp time.Time
}

// DataHandler receives OSM elements as they are scanned from a PBF file. Handlers must not
// mutate the elements they're given. Handling functions are called in order: Init, then nodes,
// ways and relations interleaved in the order the input streams them, then Done.
type DataHandler interface {
	Name() string
	Init(header Header) error
	HandleNode(node *osm.Node) error
	HandleWay(way *osm.Way) error
	HandleRelation(relation *osm.Relation) error
	Done() error
}

// Reader reads a .osm.pbf file and calls every given DataHandler on the data it scans.
type Reader struct {
	firstWayHasBeenProcessed      bool
	firstRelationHasBeenProcessed bool
}

func NewReader() *Reader {
	return &Reader{}
}

// Read scans filename and dispatches every element to each handler in turn. Elements are
// expected to arrive with non-decreasing ids within each kind (an OSM planet-file property this
// reader does not itself verify; table-level ordering violations surface from the handler).
func (r *Reader) Read(filename string, handlers ...DataHandler) error {
	file, err := os.OpenFile(filename, os.O_RDONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "unable to open OSM input file %s", filename)
	}
	defer file.Close()

	scanner := osmpbf.New(context.Background(), file, 1)
	defer scanner.Close()

	header, err := scanner.Header()
	if err != nil {
		return errors.Wrapf(err, "unable to read PBF header of %s", filename)
	}

	ownHeader := Header{}
	if header != nil {
		ownHeader.ReplicationTimestamp = header.ReplicationTimestamp
	}

	sigolo.Debugf("Start processing OSM data file %s", filename)
	importStartTime := time.Now()

	for _, handler := range handlers {
		err = handler.Init(ownHeader)
		if err != nil {
			return errors.Wrapf(err, "initializing OSM data handler '%s' failed", handler.Name())
		}
	}

	sigolo.Debug("Start processing nodes (1/3)")
	for scanner.Scan() {
		switch osmObj := scanner.Object().(type) {
		case *osm.Node:
			for _, handler := range handlers {
				err = handler.HandleNode(osmObj)
				if err != nil {
					return errors.Wrapf(err, "handling node %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Way:
			if !r.firstWayHasBeenProcessed {
				sigolo.Debug("Start processing ways (2/3)")
				r.firstWayHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err = handler.HandleWay(osmObj)
				if err != nil {
					return errors.Wrapf(err, "handling way %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Relation:
			if !r.firstRelationHasBeenProcessed {
				sigolo.Debug("Start processing relations (3/3)")
				r.firstRelationHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err = handler.HandleRelation(osmObj)
				if err != nil {
					return errors.Wrapf(err, "handling relation %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrapf(err, "scanning OSM data file %s failed", filename)
	}

	sigolo.Info("Finished scanning data, start post-processing")
	for _, handler := range handlers {
		err = handler.Done()
		if err != nil {
			return errors.Wrapf(err, "calling done function on handler '%s' failed", handler.Name())
		}
	}

	importDuration := time.Since(importStartTime)
	sigolo.Infof("Done processing OSM data in %s", importDuration)

	return nil
}
