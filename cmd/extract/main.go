package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dvloznov/fidoo-extractor/internal/app"
	"github.com/dvloznov/fidoo-extractor/internal/config"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config (or set FIDOO_CONFIG env)")
		objects     = flag.String("objects", "", "Comma-separated objects to extract (overrides config)")
		incremental = flag.Bool("incremental", false, "Only fetch records modified since the stored watermark")
		dependents  = flag.Bool("dependents", false, "Also fetch per-parent dependent objects")
		runID       = flag.String("run-id", "", "Run identifier (generated when empty)")
		jsonLogs    = flag.Bool("json-logs", false, "Emit JSON log lines")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "objects":
			cfg.Extraction.Objects = strings.Split(*objects, ",")
		case "incremental":
			cfg.Extraction.Incremental = *incremental
		case "dependents":
			cfg.Extraction.Dependents = *dependents
		}
	})

	log := logger.NewWithOptions(logger.Options{Debug: cfg.Debug, JSON: *jsonLogs, Component: "extract"})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	extractor, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise extractor")
	}
	defer extractor.Close()

	req := extractor.DefaultRequest()
	req.RunID = *runID

	res, err := extractor.Extract(ctx, req)
	if res != nil {
		printSummary(os.Stdout, res)
	}
	if err != nil {
		// Per-object failures are reported in the summary; only an aborted
		// run fails the process.
		if errors.Is(err, pipeline.ErrRunAborted) {
			log.Error().Err(err).Msg("Extraction run aborted")
		} else {
			log.Error().Err(err).Msg("Extraction run failed")
		}
		extractor.Close()
		os.Exit(1)
	}
}

func printSummary(w io.Writer, res *pipeline.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "OBJECT\tSTATUS\tMODE\tRECORDS\tTABLES\tDETAIL\n")
	for _, o := range res.Objects {
		detail := o.Error
		if detail == "" && len(o.Warnings) > 0 {
			detail = fmt.Sprintf("%d warning(s): %s", len(o.Warnings), o.Warnings[0])
		}
		tables := make([]string, 0, len(o.Fragments))
		for _, f := range o.Fragments {
			tables = append(tables, fmt.Sprintf("%s(%d)", f.Name, f.Rows))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			o.Object, o.Status, o.LoadMode, o.RecordsFetched, strings.Join(tables, ","), detail)
	}
	tw.Flush()

	counts := res.Counts()
	fmt.Fprintf(w, "\nRun %s: %d complete, %d complete with warnings, %d failed\n",
		res.RunID,
		counts[pipeline.StatusComplete],
		counts[pipeline.StatusCompleteWithWarnings],
		counts[pipeline.StatusFailed])
}
