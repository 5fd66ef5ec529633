package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"

	"osmx/ingest"
	"osmx/osmx"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Expand  struct {
		Input  string `help:"Path of an .osm.pbf file to read." placeholder:"<input-file>" arg:"" type:"existingfile"`
		Output string `help:"Path of the .osmx file to create." placeholder:"<output-file>" arg:""`
	} `cmd:"" help:"Converts an OSM PBF file into an osmx database."`
	Stat struct {
		Input string `help:"Path of an .osmx file to inspect." placeholder:"<input-file>" arg:"" type:"existingfile"`
	} `cmd:"" help:"Prints per-table entry counts of an osmx database."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("osmx"),
		kong.Description("Converts and inspects OSM PBF snapshot databases."),
		kong.Vars{
			"version": VERSION,
		},
	)

	switch strings.ToLower(cli.Logging) {
	case "debug":
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	case "trace":
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	case "info":
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	default:
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	switch ctx.Command() {
	case "expand <input> <output>":
		err := ingest.Run(cli.Expand.Input, cli.Expand.Output)
		sigolo.FatalCheck(err)
	case "stat <input>":
		runStat(cli.Stat.Input)
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

func runStat(path string) {
	db, err := osmx.Open(path)
	sigolo.FatalCheck(err)
	defer db.Close()

	txn, err := db.Begin()
	sigolo.FatalCheck(err)
	defer txn.Commit()

	stats, err := txn.Stats()
	sigolo.FatalCheck(err)

	fmt.Printf("%-18s %12s %12s %12s %9s %9s %9s\n",
		"NAME", "ENTRIES", "SIZE(KiB)", "TOTAL_PAGES", "BRANCH", "LEAF", "OVERFLOW")
	for _, s := range stats {
		fmt.Printf("%-18s %12d %12d %12d %9d %9d %9d\n",
			s.Name, s.Entries, s.SizeKiB, s.TotalPages, s.Branch, s.Leaf, s.Overflow)
	}

	if name, found, err := txn.Metadata().ImportFilename(); err == nil && found {
		fmt.Printf("%-20s %s\n", "import_filename", name)
	}
	if stamp, found, err := txn.Metadata().ReplicationTimestamp(); err == nil && found {
		fmt.Printf("%-20s %d\n", "replication_timestamp", stamp)
	}
}
