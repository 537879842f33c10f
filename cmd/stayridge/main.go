// Package main implements the stayridge operator binary: partition
// provisioning, record ingestion, ad hoc queries, and retirement against a
// data directory. The binary opens the engine directly; there is no server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/stayridge/stayridge/internal/config"
	"github.com/stayridge/stayridge/internal/engine"
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

const dateLayout = "2006-01-02"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "provision":
		err = runProvision(args)
	case "ingest":
		err = runIngest(args)
	case "query":
		err = runQuery(args)
	case "retire":
		err = runRetire(args)
	case "index":
		err = runIndex(args)
	case "version":
		fmt.Printf("stayridge version %s (commit: %s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Stayridge - range-partitioned booking record store\n\n")
	fmt.Fprintf(os.Stderr, "Usage: stayridge <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  provision   Create a partition over a [low, high) start-date range\n")
	fmt.Fprintf(os.Stderr, "  ingest      Append NDJSON booking records from stdin or a file\n")
	fmt.Fprintf(os.Stderr, "  query       Run a query descriptor and print the result page\n")
	fmt.Fprintf(os.Stderr, "  retire      Retire a partition, or sweep all expired ranges\n")
	fmt.Fprintf(os.Stderr, "  index       Declare or drop a secondary index\n")
	fmt.Fprintf(os.Stderr, "  version     Show version information\n")
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  STAYRIDGE_DATA_DIR       Base directory for data files\n")
	fmt.Fprintf(os.Stderr, "  STAYRIDGE_STORAGE_TYPE   Archive storage type (local, s3)\n")
	fmt.Fprintf(os.Stderr, "  STAYRIDGE_S3_BUCKET      Archive bucket when storage type is s3\n")
}

// commonFlags registers the flags every command shares and returns the
// destinations for config file and data dir.
func commonFlags(fs *flag.FlagSet) (configFile, dataDir *string) {
	configFile = fs.String("config", "", "Path to configuration file (YAML or JSON)")
	dataDir = fs.String("data-dir", "", "Base directory for all data files")
	return
}

func loadConfig(configFile, dataDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func openEngine(configFile, dataDir string) (*engine.Engine, error) {
	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		return nil, err
	}
	return engine.Open(context.Background(), cfg)
}

func parseDate(s string) (int64, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t.UnixNano(), nil
}

func runProvision(args []string) error {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	low := fs.String("low", "", "Inclusive lower bound date (YYYY-MM-DD)")
	high := fs.String("high", "", "Exclusive upper bound date (YYYY-MM-DD)")
	open := fs.Bool("open", false, "Provision an open-ended partition from --low")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *low == "" {
		return fmt.Errorf("--low is required")
	}
	lowNanos, err := parseDate(*low)
	if err != nil {
		return err
	}
	highNanos := types.OpenHigh
	if !*open {
		if *high == "" {
			return fmt.Errorf("--high is required unless --open is set")
		}
		if highNanos, err = parseDate(*high); err != nil {
			return err
		}
	}

	e, err := openEngine(*configFile, *dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.ProvisionPartition(context.Background(), lowNanos, highNanos)
	if err != nil {
		return err
	}
	fmt.Printf("provisioned %s\n", id)
	return nil
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	file := fs.String("file", "", "NDJSON file of booking records (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	e, err := openEngine(*configFile, *dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var appended, failed int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record types.Record
		if err := json.Unmarshal(line, &record); err != nil {
			log.Printf("skipping malformed record: %v", err)
			failed++
			continue
		}

		if _, _, err := e.Append(ctx, record); err != nil {
			log.Printf("append failed: %v", err)
			failed++
			continue
		}
		appended++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("appended %d records, %d failed\n", appended, failed)
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	descriptorJSON := fs.String("descriptor", "", "Query descriptor as JSON (overrides the shortcut flags)")
	guest := fs.Int64("guest", 0, "Filter on guest_id")
	status := fs.String("status", "", "Filter on status")
	from := fs.String("from", "", "Inclusive start_date lower bound (YYYY-MM-DD)")
	to := fs.String("to", "", "Exclusive start_date upper bound (YYYY-MM-DD)")
	sortField := fs.String("sort", "", "Sort field")
	desc := fs.Bool("desc", false, "Sort descending")
	limit := fs.Int("limit", 0, "Page size limit")
	cursor := fs.String("cursor", "", "Continuation cursor from a previous page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var d types.Descriptor
	if *descriptorJSON != "" {
		if err := json.Unmarshal([]byte(*descriptorJSON), &d); err != nil {
			return fmt.Errorf("invalid descriptor: %w", err)
		}
	} else {
		if *guest != 0 {
			d.Constraints = append(d.Constraints, types.Constraint{
				Field: "guest_id", Op: types.OpEq, Value: *guest})
		}
		if *status != "" {
			d.Constraints = append(d.Constraints, types.Constraint{
				Field: "status", Op: types.OpEq, Value: *status})
		}
		if *from != "" || *to != "" {
			c := types.Constraint{Field: types.PartitionKeyField, Op: types.OpRange, IncLow: true}
			if *from != "" {
				low, err := parseDate(*from)
				if err != nil {
					return err
				}
				c.Low = low
			}
			if *to != "" {
				high, err := parseDate(*to)
				if err != nil {
					return err
				}
				c.High = high
			}
			d.Constraints = append(d.Constraints, c)
		}
		if *sortField != "" {
			d.Sort = &types.Sort{Field: *sortField, Desc: *desc}
		}
		d.Limit = *limit
		d.Cursor = *cursor
	}

	e, err := openEngine(*configFile, *dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.Query(context.Background(), &d)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runRetire(args []string) error {
	fs := flag.NewFlagSet("retire", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	partitionID := fs.String("partition", "", "Partition to retire")
	sweep := fs.Bool("sweep", false, "Retire every partition past the retention horizon")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEngine(*configFile, *dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	if *sweep {
		retired, err := e.RetireEligible(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("retired %d partitions: %v\n", len(retired), retired)
		return nil
	}

	if *partitionID == "" {
		return fmt.Errorf("--partition or --sweep is required")
	}
	count, err := e.Retire(ctx, *partitionID)
	if err != nil {
		return err
	}
	fmt.Printf("retired %s (%d records archived)\n", *partitionID, count)
	return nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configFile, dataDir := commonFlags(fs)
	declare := fs.String("declare", "", "Declare an index: name=field1,field2")
	drop := fs.String("drop", "", "Drop the named index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEngine(*configFile, *dataDir)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	switch {
	case *declare != "":
		def, err := parseIndexSpec(*declare)
		if err != nil {
			return err
		}
		if err := e.DeclareIndex(ctx, def); err != nil {
			return err
		}
		fmt.Printf("declared %s on %v\n", def.Name, def.Fields)
	case *drop != "":
		if err := e.DropIndex(ctx, *drop); err != nil {
			return err
		}
		fmt.Printf("dropped %s\n", *drop)
	default:
		defs, err := e.IndexDefinitions(ctx)
		if err != nil {
			return err
		}
		for _, def := range defs {
			auto := ""
			if def.AutoCreated {
				auto = " (auto)"
			}
			fmt.Printf("%s: %v%s\n", def.Name, def.Fields, auto)
		}
	}
	return nil
}

// parseIndexSpec parses "name=field1,field2" into a definition.
func parseIndexSpec(spec string) (index.Definition, error) {
	var def index.Definition
	name, fields, ok := strings.Cut(spec, "=")
	if ok {
		def.Name = name
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				def.Fields = append(def.Fields, f)
			}
		}
	}
	if def.Name == "" || len(def.Fields) == 0 {
		return def, fmt.Errorf("invalid index spec %q (want name=field1,field2)", spec)
	}
	return def, nil
}
