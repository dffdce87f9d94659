package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scancorpus/internal/blob"
	"scancorpus/internal/config"
	"scancorpus/internal/core"
	"scancorpus/internal/ocr"
	"scancorpus/internal/storage"
	"scancorpus/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
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

	backend, err := ocr.BuildBackend(cfg)
	if err != nil {
		log.Fatal(err)
	}
	pages := storage.NewPageRepo(db)
	coordinator := ocr.NewCoordinator(cfg, backend, pages, storage.NewOCRResultWriter(db))

	ocrLoop := worker.NewOCRLoop(cfg, pages, coordinator)
	ingestLoop := worker.NewIngestLoop(cfg, c)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ocrLoop.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		ingestLoop.Run(runCtx)
	}()

	log.Printf("scancorpus worker started ocr_engine=%q ingest_source=%q run_interval=%ds",
		cfg.OCREngine, cfg.IngestSourceID, cfg.IngestRunIntervalSec)

	<-runCtx.Done()
	log.Print("scancorpus worker shutting down")
	wg.Wait()
}
