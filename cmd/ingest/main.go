// Command ingest runs one shot of ingest_from_source and exits, the CLI
// counterpart to internal/worker's periodic IngestLoop. It mirrors
// original_source/scripts/ingest_doj_files.py's --skip-existing flag; that
// script's --preview mode has no equivalent here since internal/core's
// exposed operations (spec.md §6.5) don't include a discovery-only step.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"scancorpus/internal/blob"
	"scancorpus/internal/config"
	"scancorpus/internal/core"
	"scancorpus/internal/storage"
	"scancorpus/internal/util"

	"github.com/joho/godotenv"
)

func main() {
	sourceID := flag.String("source", "site", "source id to ingest (\"site\" or \"generic\")")
	skipExisting := flag.Bool("skip-existing", true, "skip files already recorded by source URL")
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	store, err := blob.NewLocal(cfg.BlobRoot)
	if err != nil {
		log.Fatal(err)
	}

	c, err := core.New(cfg, db, store, http.DefaultClient)
	if err != nil {
		log.Fatal(err)
	}

	report, err := c.IngestFromSource(context.Background(), *sourceID, *skipExisting)
	if err != nil {
		log.Fatalf("ingest from %s: %v", *sourceID, err)
	}

	log.Printf("ingestion complete: discovered=%d downloaded=%d processed=%d errors=%d",
		report.Discovered, report.Downloaded, report.Processed, len(report.Errors))
	for _, e := range report.Errors {
		log.Printf("  error: %s", e)
	}

	reportPath := filepath.Join(cfg.BlobRoot, "reports", "ingest-"+*sourceID+".json")
	if err := util.WriteJSONAtomic(reportPath, report); err != nil {
		log.Printf("write ingest report: %v", err)
	}
}
