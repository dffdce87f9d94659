package ocr

import (
	"fmt"
	"time"

	"scancorpus/internal/config"
)

// BuildBackend selects and constructs the Backend named by cfg.OCREngine.
// "ensemble" composes one instance of every other named backend and merges
// their output per spec.md §4.4; any other value selects a single backend.
func BuildBackend(cfg config.Config) (Backend, error) {
	switch cfg.OCREngine {
	case "tesseract":
		return NewTesseractBackend(), nil
	case "textract", "easyocr", "paddle":
		return remoteBackendFor(cfg, cfg.OCREngine), nil
	case "ensemble":
		return buildEnsemble(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.OCREngine)
	}
}

func remoteBackendFor(cfg config.Config, engine string) *RemoteHTTPBackend {
	endpoint := cfg.OCREndpoints[engine]
	timeout := time.Duration(cfg.OCRCallTimeout) * time.Second
	return NewRemoteHTTPBackend(engine, endpoint, "", timeout)
}

func buildEnsemble(cfg config.Config) *EnsembleBackend {
	children := []Backend{
		NewTesseractBackend(),
		remoteBackendFor(cfg, "textract"),
		remoteBackendFor(cfg, "easyocr"),
		remoteBackendFor(cfg, "paddle"),
	}
	return NewEnsembleBackend(children, cfg.OCRDropConfidence)
}
