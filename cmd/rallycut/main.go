package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtside-data/rallycut/internal/config"
	"github.com/courtside-data/rallycut/internal/rally"
	"github.com/courtside-data/rallycut/internal/rally/report"
	"github.com/courtside-data/rallycut/internal/version"
	"github.com/courtside-data/rallycut/internal/video"
)

var (
	videoPath   = flag.String("video", "", "Path to the source video file (required)")
	modelPath   = flag.String("model", "", "Path to the ONNX ball detection model")
	configPath  = flag.String("config", "", "Optional JSON tuning overlay file")
	outDir      = flag.String("out-dir", "", "Directory for the trimmed video (default: next to source)")
	dbFile      = flag.String("db", "", "Path to the SQLite run database (empty disables persistence)")
	reportPath  = flag.String("report", "", "Path for the HTML run report (empty disables it)")
	noExport    = flag.Bool("no-export", false, "Analyze only; print the keep-list without writing a video")
	minConf     = flag.Float64("min-confidence", video.DefaultMinConfidence, "Detector confidence floor")
	verbosity   = flag.String("verbosity", "diag", "Log verbosity: ops, diag or trace")
	showVersion = flag.Bool("version", false, "Print build information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *videoPath == "" {
		flag.Usage()
		log.Fatal("missing required -video flag")
	}
	if err := configureLogging(*verbosity); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		if errors.Is(err, rally.ErrNoKeepRanges) {
			log.Print("no rallies detected; nothing to export")
			os.Exit(2)
		}
		log.Fatalf("rallycut: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadProcessorConfig(*configPath)
	if err != nil {
		return err
	}

	source, err := video.OpenFileSource(*videoPath)
	if err != nil {
		return err
	}
	defer source.Close()

	detector := video.NewBallDetector(*modelPath, *minConf)

	var exporter rally.Exporter
	if !*noExport {
		exporter = video.NewFFmpegExporter(*outDir)
	}

	progress := func(fraction float64) {
		fmt.Printf("\rprocessing %3.0f%%", fraction*100)
		if fraction >= 1 {
			fmt.Println()
		}
	}

	pipeline, err := rally.NewPipeline(cfg, source, detector, exporter, progress)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := pipeline.Run(ctx, *videoPath)
	finished := time.Now()
	if err != nil {
		return err
	}

	printSummary(res, finished.Sub(started))

	if *dbFile != "" {
		if err := persistRun(*dbFile, started, finished, res); err != nil {
			return err
		}
	}
	if *reportPath != "" {
		if err := report.WriteRunReport(*reportPath, *videoPath, res); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(res *rally.RunResult, elapsed time.Duration) {
	fmt.Printf("%d frames, %d detections, %d rallies in %s\n",
		res.Stats.FramesProcessed, res.Stats.Detections, res.Stats.Rallies,
		elapsed.Round(time.Millisecond))
	for i, r := range res.Keep {
		fmt.Printf("  rally %d: %s\n", i+1, r)
	}
	fmt.Printf("keeping %.1fs of %.1fs (%.0f%%)\n",
		res.Stats.KeepSeconds, res.Stats.VideoDuration, res.Stats.Coverage()*100)
	if res.Exported != "" {
		fmt.Printf("wrote %s\n", res.Exported)
	}
}

func persistRun(path string, started, finished time.Time, res *rally.RunResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := rally.NewSegmentStore(db)
	if err := store.InitSchema(); err != nil {
		return err
	}
	rec := rally.NewRunRecord(*videoPath, started, finished, res)
	runID, err := store.RecordRun(rec, res.Keep)
	if err != nil {
		return err
	}
	fmt.Printf("recorded run %s\n", runID)
	return nil
}

// configureLogging maps the verbosity flag onto the three logging streams.
// Each level includes the streams below it.
func configureLogging(level string) error {
	w := rally.LogWriters{Ops: os.Stderr}
	switch strings.ToLower(level) {
	case "ops":
	case "diag":
		w.Diag = os.Stderr
	case "trace":
		w.Diag = os.Stderr
		w.Trace = os.Stderr
	default:
		return fmt.Errorf("unknown verbosity %q (want ops, diag or trace)", level)
	}
	rally.SetLogWriters(w)
	return nil
}
