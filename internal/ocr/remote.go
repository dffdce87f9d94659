package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"scancorpus/internal/models"
)

// RemoteHTTPBackend calls out to an OCR engine with no Go SDK in this
// module's dependency pack (AWS Textract, EasyOCR, PaddleOCR all run as
// sidecar HTTP services instead), grounded on
// toricodesthings-File-Extraction-Service/internal/ocr/mistral.go's
// RunMistralOCR: POST a JSON body, check the status range, decode the JSON
// response. The request/response shape here is this module's own (a
// base64 image in, a flat word list with pixel-space boxes out, matching
// models.WordBox's convention) since there is no shared wire format across
// those three engines to imitate.
type RemoteHTTPBackend struct {
	EngineName string
	Endpoint   string
	APIKey     string
	Client     *http.Client
}

func NewRemoteHTTPBackend(engineName, endpoint, apiKey string, timeout time.Duration) *RemoteHTTPBackend {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RemoteHTTPBackend{
		EngineName: engineName,
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Client:     &http.Client{Timeout: timeout},
	}
}

func (b *RemoteHTTPBackend) Name() string { return b.EngineName }

type remoteOCRRequest struct {
	ImageBase64 string   `json:"image_base64"`
	Languages   []string `json:"languages,omitempty"`
}

type remoteWordBox struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

type remoteOCRResponse struct {
	Text       string          `json:"text"`
	Words      []remoteWordBox `json:"words"`
	Confidence float64         `json:"confidence"`
}

func (b *RemoteHTTPBackend) Recognize(ctx context.Context, imagePath string, languages []string) (Result, error) {
	if b.Endpoint == "" {
		return Result{}, fmt.Errorf("%s backend: no endpoint configured", b.EngineName)
	}
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("read image for %s ocr: %w", b.EngineName, err)
	}

	reqBody := remoteOCRRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(raw),
		Languages:   languages,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s ocr request: %w", b.EngineName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Result{}, fmt.Errorf("%s ocr error %d: %s", b.EngineName, resp.StatusCode, string(slurp))
	}

	var parsed remoteOCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode %s ocr response: %w", b.EngineName, err)
	}

	words := make([]models.WordBox, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		words = append(words, models.WordBox{
			Text: w.Text, X: w.X, Y: w.Y, Width: w.Width, Height: w.Height, Confidence: w.Confidence,
		})
	}
	return Result{Text: parsed.Text, WordBoxes: words, Confidence: parsed.Confidence}, nil
}
