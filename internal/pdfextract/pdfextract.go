// Package pdfextract turns a meeting packet URL (or raw bytes) into plain
// text, falling back to OCR on pages whose embedded text is too sparse to
// be the real content (scanned agendas are the common case).
package pdfextract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/otiai10/gosseract/v2"
)

// downloadTimeout and maxBodyBytes bound how long and how much a packet
// download is allowed to take before the rest of the pipeline stalls on it.
const (
	downloadTimeout = 30 * time.Second
	maxBodyBytes    = 100 * 1024 * 1024
)

// Result is the shape every extraction operation returns, whether it came
// from a URL or from in-memory bytes.
type Result struct {
	Success        bool
	Text           string
	Method         string // "primary" or "primary+ocr"
	PageCount      int
	ExtractionTime time.Duration
	OCRPages       int
	Error          string
}

// Extractor downloads and extracts packet PDFs, falling back to OCR for
// pages whose directly-extracted text falls below OCRThreshold characters.
type Extractor struct {
	OCRThreshold int
	HTTPClient   *http.Client
}

// New builds an Extractor with the given OCR trigger threshold (in
// characters); ocrThreshold <= 0 uses the default of 100.
func New(ocrThreshold int) *Extractor {
	if ocrThreshold <= 0 {
		ocrThreshold = 100
	}
	return &Extractor{
		OCRThreshold: ocrThreshold,
		HTTPClient:   &http.Client{Timeout: downloadTimeout},
	}
}

// ExtractFromURL downloads url under the size/timeout caps and extracts
// its text.
func (e *Extractor) ExtractFromURL(ctx context.Context, url string) Result {
	start := time.Now()

	data, err := e.download(ctx, url)
	if err != nil {
		return Result{Success: false, Error: err.Error(), ExtractionTime: time.Since(start)}
	}

	result := e.ExtractFromBytes(data)
	result.ExtractionTime = time.Since(start)
	return result
}

// download streams the response body with a running byte count, failing
// closed the moment the cap is crossed rather than buffering an unbounded
// body first.
func (e *Extractor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("pdfextract: build request: %w", err)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdfextract: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("pdfextract: download %s: status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > maxBodyBytes {
		return nil, fmt.Errorf("pdfextract: %s declares %d bytes, exceeds %d byte cap", url, resp.ContentLength, maxBodyBytes)
	}

	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("pdfextract: read body of %s: %w", url, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("pdfextract: %s exceeded %d byte cap while streaming", url, maxBodyBytes)
	}
	return data, nil
}

// ExtractFromBytes extracts text from an in-memory PDF, rendering
// per-page OCR where the directly-extracted text is too sparse.
func (e *Extractor) ExtractFromBytes(data []byte) Result {
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "pdfextract-*")
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("pdfextract: temp dir: %v", err), ExtractionTime: time.Since(start)}
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "packet.pdf")
	if err := os.WriteFile(inFile, data, 0o644); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("pdfextract: write temp file: %v", err), ExtractionTime: time.Since(start)}
	}

	pageCount, err := api.PageCountFile(inFile)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("pdfextract: page count: %v", err), ExtractionTime: time.Since(start)}
	}

	textDir := filepath.Join(tmpDir, "text")
	if err := os.Mkdir(textDir, 0o755); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("pdfextract: text dir: %v", err), ExtractionTime: time.Since(start)}
	}
	if err := api.ExtractTextFile(inFile, textDir, nil, model.NewDefaultConfiguration()); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("pdfextract: extract text: %v", err), ExtractionTime: time.Since(start)}
	}

	imagesDir := filepath.Join(tmpDir, "images")
	_ = os.Mkdir(imagesDir, 0o755)
	_ = api.ExtractImagesFile(inFile, imagesDir, nil, model.NewDefaultConfiguration())

	var builder strings.Builder
	ocrPages := 0

	for page := 1; page <= pageCount; page++ {
		pageText := readPageText(textDir, page)

		if len(strings.TrimSpace(pageText)) < e.OCRThreshold {
			if ocrText, ok := e.ocrPage(imagesDir, page); ok {
				pageText = ocrText
				ocrPages++
			}
		}

		fmt.Fprintf(&builder, "--- PAGE %d ---\n%s\n\n", page, pageText)
	}

	method := "primary"
	if ocrPages > 0 {
		method = "primary+ocr"
	}

	return Result{
		Success:   true,
		Text:      normalize(builder.String()),
		Method:    method,
		PageCount: pageCount,
		OCRPages:  ocrPages,
	}
}

// readPageText finds pdfcpu's per-page text output. pdfcpu names
// extracted text files after the input file stem with a page suffix; we
// tolerate either "packet_1.txt" or "packet_page_1.txt" naming since that
// has varied across pdfcpu releases.
func readPageText(textDir string, page int) string {
	candidates := []string{
		filepath.Join(textDir, fmt.Sprintf("packet_%d.txt", page)),
		filepath.Join(textDir, fmt.Sprintf("packet_page_%d.txt", page)),
	}
	for _, c := range candidates {
		if data, err := os.ReadFile(c); err == nil {
			return string(data)
		}
	}
	return ""
}

// ocrPage runs Tesseract over the page's embedded raster image, if one
// was extracted. pdfcpu cannot rasterize arbitrary vector page content,
// but a scanned agenda page is almost always a single full-page image, so
// this covers the dominant real-world "scanned PDF" case.
func (e *Extractor) ocrPage(imagesDir string, page int) (string, bool) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return "", false
	}

	prefix := fmt.Sprintf("packet_%d_", page)
	var imagePath string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			imagePath = filepath.Join(imagesDir, entry.Name())
			break
		}
	}
	if imagePath == "" {
		return "", false
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(imagePath); err != nil {
		return "", false
	}
	text, err := client.Text()
	if err != nil {
		return "", false
	}
	return text, true
}

var ocrArtifactReplacer = strings.NewReplacer(
	"|", "I",
	"‚", ",",
)

// normalize collapses excessive whitespace and fixes common OCR artifacts,
// without mangling the page markers extraction itself inserted.
func normalize(text string) string {
	text = ocrArtifactReplacer.Replace(text)

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return strings.TrimSpace(text)
}

var civicVocabulary = map[string]bool{
	"council": true, "meeting": true, "agenda": true, "city": true,
	"county": true, "board": true, "commission": true, "public": true,
	"ordinance": true, "resolution": true, "hearing": true, "minutes": true,
	"budget": true, "item": true, "motion": true, "vote": true,
	"session": true, "district": true, "committee": true, "staff": true,
}

// ValidateText rejects extracted text that looks like a garbled
// extraction rather than real agenda content.
func ValidateText(text string) bool {
	if len(text) < 100 {
		return false
	}

	letters := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if float64(letters)/float64(len(text)) < 0.30 {
		return false
	}

	words := strings.Fields(text)
	if len(words) < 20 {
		return false
	}

	sample := words
	if len(sample) > 100 {
		sample = sample[:100]
	}

	vocabHits := 0
	singleChar := 0
	for _, w := range sample {
		if civicVocabulary[strings.ToLower(strings.Trim(w, ".,;:()\"'"))] {
			vocabHits++
		}
		if len(w) == 1 {
			singleChar++
		}
	}
	if vocabHits < 5 {
		return false
	}
	if singleChar > 20 {
		return false
	}

	return true
}
