package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/app"
	"github.com/dvloznov/fidoo-extractor/internal/catalog"
	"github.com/dvloznov/fidoo-extractor/internal/config"
	infraBQ "github.com/dvloznov/fidoo-extractor/internal/infra/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "objects":
		runObjects()
	case "check":
		runCheck(log)
	case "read":
		runRead(log)
	case "state":
		runState(log)
	case "runs":
		runRuns(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Fidoo Extractor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  objects   List extractable objects")
	fmt.Println("  check     Validate the API key against status/user-info")
	fmt.Println("  read      Print records of one object as JSON lines")
	fmt.Println("  state     Show or reset incremental watermarks")
	fmt.Println("  runs      List recent object extractions from the BigQuery audit table")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadApp(ctx context.Context, log zerolog.Logger, configPath string) *app.App {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise extractor")
	}
	return a
}

func runObjects() {
	for _, def := range catalog.New().All() {
		mode := "full"
		if def.Incremental {
			mode = "incremental"
		}
		fmt.Printf("%-24s %-40s %s\n", def.Name, def.Endpoint, mode)
		for _, dep := range def.Dependents {
			fmt.Printf("  └ %-20s %-40s parent.%s\n", dep.Object.Name, dep.Object.Endpoint, dep.ParentField)
		}
	}
}

func runCheck(log zerolog.Logger) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	if err := a.Client.ValidateConnection(ctx); err != nil {
		log.Fatal().Err(err).Msg("Connection check failed")
	}
	fmt.Println("Connection OK.")
}

func runRead(log zerolog.Logger) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config")
	object := fs.String("object", "", "Object to read")
	limit := fs.Int("limit", 10, "Maximum number of records to print (0 = all)")
	since := fs.String("since", "", "Only records modified since this RFC3339 time")
	fs.Parse(os.Args[2:])

	if *object == "" {
		log.Fatal().Msg("Error: --object is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	def, ok := a.Catalog.Get(*object)
	if !ok {
		log.Fatal().Str("object", *object).Strs("available", a.Catalog.Names()).Msg("Unknown object")
	}

	var from *time.Time
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid --since")
		}
		from = &t
	}

	it := pipeline.NewFetcher(a.Reader, a.Config.API.PageSize).Fetch(ctx, def, from, nil)
	enc := json.NewEncoder(os.Stdout)
	for n := 0; *limit == 0 || n < *limit; n++ {
		rec, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Read failed")
		}
		if err := enc.Encode(rec.Fields); err != nil {
			log.Fatal().Err(err).Msg("Encoding record")
		}
	}
	log.Info().Int("pages", it.Pages()).Int("records", it.Fetched()).Msg("Read finished")
}

func runState(log zerolog.Logger) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: cli state <show|reset> [options]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("state "+os.Args[2], flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config")
	object := fs.String("object", "", "Object whose watermark to reset (reset only)")
	fs.Parse(os.Args[3:])

	ctx := logger.WithContext(context.Background(), log)
	a := loadApp(ctx, log, *configPath)
	defer a.Close()

	switch os.Args[2] {
	case "show":
		marks, err := a.Store.Watermarks(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read state")
		}
		if len(marks) == 0 {
			fmt.Println("No watermarks stored.")
			return
		}
		names := make([]string, 0, len(marks))
		for name := range marks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-24s %s\n", name, marks[name].Format(time.RFC3339))
		}
	case "reset":
		if *object == "" {
			log.Fatal().Msg("Error: --object is required")
		}
		if _, ok := a.Catalog.Get(*object); !ok {
			log.Fatal().Str("object", *object).Msg("Unknown object")
		}
		if err := a.Store.Delete(ctx, *object); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset watermark")
		}
		fmt.Printf("Watermark for %s reset; the next run does a full extraction.\n", *object)
	default:
		fmt.Fprintf(os.Stderr, "Unknown state command: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config")
	limit := fs.Int("limit", 20, "Number of object extractions to list")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.BigQuery.ProjectID == "" {
		log.Fatal().Msg("Error: bigquery.project_id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	repo, err := infraBQ.NewRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	rows, err := repo.ListRecentExtractionRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	for _, row := range rows {
		records := "-"
		if row.RecordsFetched.Valid {
			records = fmt.Sprint(row.RecordsFetched.Int64)
		}
		line := fmt.Sprintf("%s  %-36s %-20s %-10s %8s", row.StartedTS.Format(time.RFC3339), row.RunID, row.Object, row.Status, records)
		if row.ErrorMessage != "" {
			line += "  " + strings.SplitN(row.ErrorMessage, "\n", 2)[0]
		}
		fmt.Println(line)
	}
}
