package evidence

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// TesseractEngine shells out to the tesseract binary for images and
// pdftotext for PDFs. It doubles as the identity verifier's text extractor.
type TesseractEngine struct {
	blobs *LocalBlobStore
	bin   string
}

func NewTesseractEngine(blobs *LocalBlobStore) *TesseractEngine {
	return &TesseractEngine{blobs: blobs, bin: "tesseract"}
}

// ExtractText runs OCR on a stored artifact.
func (t *TesseractEngine) ExtractText(ctx context.Context, artifactRef string) (*Extraction, error) {
	path := filepath.Join(t.blobs.root, filepath.Base(artifactRef))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("artifact %s not found: %w", artifactRef, err)
	}

	var text string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = t.runPdftotext(ctx, path)
	} else {
		text, err = t.runTesseract(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return &Extraction{Text: "", Confidence: 0}, nil
	}
	// Tesseract's stdout mode drops word confidences; score on yield instead.
	return &Extraction{Text: text, Confidence: textConfidence(text)}, nil
}

// ExtractDocumentText OCRs an in-memory document for identity verification.
func (t *TesseractEngine) ExtractDocumentText(ctx context.Context, document []byte) (string, error) {
	tmp, err := os.CreateTemp("", "identity-doc-*")
	if err != nil {
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to stage document: %w", err)
	}
	tmp.Close()

	return t.runTesseract(ctx, tmp.Name())
}

// Page segmentation modes tried in order: automatic, single uniform block,
// single variable-size column, sparse text. The first substantial result
// wins; noisy scans often yield nothing under one mode and plenty under the
// next.
var tesseractConfigs = [][]string{
	{"--oem", "1", "--psm", "3"},
	{"--oem", "1", "--psm", "6"},
	{"--oem", "1", "--psm", "4"},
	{"--oem", "1", "--psm", "11"},
}

// substantialTextLen is the yield below which the next segmentation mode is
// still worth trying.
const substantialTextLen = 10

func (t *TesseractEngine) runTesseract(ctx context.Context, path string) (string, error) {
	var text string
	var lastErr error
	for _, config := range tesseractConfigs {
		args := append([]string{path, "stdout"}, config...)
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, t.bin, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("tesseract failed: %v: %s", err, strings.TrimSpace(stderr.String()))
			continue
		}
		lastErr = nil
		text = strings.TrimSpace(stdout.String())
		if len(text) > substantialTextLen {
			return text, nil
		}
	}
	if lastErr != nil && text == "" {
		return "", lastErr
	}
	return text, nil
}

func (t *TesseractEngine) runPdftotext(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pdftotext", path, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// textConfidence scores extraction quality by the share of alphanumeric
// content, a rough proxy for how much of the page OCR actually recognized.
func textConfidence(text string) float64 {
	if text == "" {
		return 0
	}
	var alnum int
	for _, r := range text {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			alnum++
		}
	}
	score := float64(alnum) / float64(len([]rune(text)))
	if score > 0.95 {
		score = 0.95
	}
	return score
}
