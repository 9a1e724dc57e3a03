// Package document extracts plain text from uploaded CV files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrEmpty       = errors.New("document has no text")
	ErrUnsupported = errors.New("unsupported document type")
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the trimmed text of a .pdf, .txt or .md file.
func (e *Extractor) ExtractText(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, err = readPDF(path)
	case ".txt", ".md":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return text, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
