package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"
)

type ExtractErrorKind string

const (
	ExtractNotFound   ExtractErrorKind = "not_found"
	ExtractNotAFile   ExtractErrorKind = "not_a_file"
	ExtractUnreadable ExtractErrorKind = "unreadable"
	ExtractCorrupt    ExtractErrorKind = "corrupt"
	ExtractNoText     ExtractErrorKind = "no_text"
)

type ExtractError struct {
	Kind ExtractErrorKind
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	var msg string
	switch e.Kind {
	case ExtractNotFound:
		msg = "file not found"
	case ExtractNotAFile:
		msg = "not a file"
	case ExtractUnreadable:
		msg = "cannot read file"
	case ExtractCorrupt:
		msg = "invalid or broken PDF"
	case ExtractNoText:
		msg = "PDF produced no text (possibly image-based)"
	default:
		msg = "text extraction failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Path)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PDFExtractor reads the text layer of a PDF with MuPDF. With OCR enabled,
// documents without a text layer are rendered page by page and passed to tesseract.
type PDFExtractor struct {
	ocr    bool
	runner CommandRunner
	log    logrus.FieldLogger
}

func NewPDFExtractor(ocrFallback bool, log logrus.FieldLogger) *PDFExtractor {
	return &PDFExtractor{ocr: ocrFallback, runner: execRunner{}, log: log}
}

// WithRunner swaps the command runner used for OCR.
func (e *PDFExtractor) WithRunner(r CommandRunner) *PDFExtractor {
	return &PDFExtractor{ocr: e.ocr, runner: r, log: e.log}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := checkReadable(path); err != nil {
		return "", err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", &ExtractError{Kind: ExtractCorrupt, Path: path, Err: err}
	}
	defer doc.Close()

	var fullText bytes.Buffer
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := doc.Text(n)
		if err != nil {
			return "", &ExtractError{Kind: ExtractCorrupt, Path: path, Err: fmt.Errorf("page %d: %w", n+1, err)}
		}
		if strings.TrimSpace(pageText) != "" {
			fullText.WriteString(pageText)
			fullText.WriteString("\n")
		}
	}

	result := strings.TrimSpace(fullText.String())
	if result != "" {
		return result, nil
	}
	if !e.ocr {
		return "", &ExtractError{Kind: ExtractNoText, Path: path}
	}

	e.log.WithFields(logrus.Fields{"path": path, "pages": doc.NumPage()}).Info("ocr_fallback")
	return e.ocrPages(ctx, doc, path)
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &ExtractError{Kind: ExtractNotFound, Path: path}
	case err != nil:
		return &ExtractError{Kind: ExtractUnreadable, Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &ExtractError{Kind: ExtractNotAFile, Path: path}
	}

	f, err := os.Open(path)
	if err != nil {
		return &ExtractError{Kind: ExtractUnreadable, Path: path, Err: err}
	}
	return f.Close()
}

func (e *PDFExtractor) ocrPages(ctx context.Context, doc *fitz.Document, path string) (string, error) {
	if out, err := e.runner.CombinedOutput(ctx, "tesseract", "-v"); err != nil {
		return "", fmt.Errorf("tesseract not found or not executable: %w, output: %s", err, string(out))
	}

	var fullText bytes.Buffer
	var lastErr error
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := doc.Image(n)
		if err != nil {
			lastErr = fmt.Errorf("page %d: failed to extract image: %w", n+1, err)
			e.log.WithError(lastErr).Warn("ocr_page_failed")
			continue
		}
		pageText, err := e.ocrImage(ctx, img)
		if err != nil {
			lastErr = fmt.Errorf("page %d: %w", n+1, err)
			e.log.WithError(lastErr).Warn("ocr_page_failed")
			continue
		}
		if pageText != "" {
			fullText.WriteString(pageText)
			fullText.WriteString("\n\n")
		}
	}

	result := strings.TrimSpace(fullText.String())
	if result == "" {
		return "", &ExtractError{Kind: ExtractNoText, Path: path, Err: lastErr}
	}
	return result, nil
}

func (e *PDFExtractor) ocrImage(ctx context.Context, img image.Image) (string, error) {
	tmpFile, err := os.CreateTemp("", "page-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(tmpFile, img); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to write PNG: %w", err)
	}

	out, err := e.runner.CombinedOutput(ctx, "tesseract", tmpPath, "stdout", "-l", "eng")
	if err != nil {
		return "", fmt.Errorf("tesseract error: %w, output: %s", err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}
