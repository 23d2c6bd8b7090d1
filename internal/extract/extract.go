// Package extract turns corpus files into plain text documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"rsc.io/pdf"

	"github.com/mwiater/coachrag/internal/rag"
)

// ErrUnsupported is wrapped in the ExtractionError returned for file types
// the extractor cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Extract reads the document at path. On any failure it returns a Document
// with empty Text together with a *rag.ExtractionError; it never panics.
func Extract(ctx context.Context, path string) (doc rag.Document, err error) {
	doc = rag.Document{Path: path, Name: filepath.Base(path)}
	if err := ctx.Err(); err != nil {
		return doc, &rag.ExtractionError{Path: path, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			doc.Text = ""
			err = &rag.ExtractionError{Path: path, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = pdfText(path)
	case ".txt", ".md", ".markdown":
		text, err = plainText(path)
	default:
		err = fmt.Errorf("%w %q", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return doc, &rag.ExtractionError{Path: path, Err: err}
	}
	doc.Text = text
	return doc, nil
}

func plainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func pdfText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		page := joinRuns(p.Content().Text)
		if page == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page)
	}
	return sb.String(), nil
}

// joinRuns assembles positioned text runs into lines. A vertical jump starts a
// new line; a horizontal gap wider than a fraction of the font size becomes a
// space.
func joinRuns(runs []pdf.Text) string {
	var sb strings.Builder
	var prev *pdf.Text
	for n := range runs {
		t := &runs[n]
		s := strings.ReplaceAll(t.S, "\x00", "")
		if s == "" {
			continue
		}
		if prev != nil {
			size := math.Max(t.FontSize, 1)
			switch {
			case math.Abs(t.Y-prev.Y) > size*0.5:
				sb.WriteByte('\n')
			case t.X-(prev.X+prev.W) > size*0.15:
				if !strings.HasSuffix(sb.String(), " ") && !strings.HasPrefix(s, " ") {
					sb.WriteByte(' ')
				}
			}
		}
		sb.WriteString(s)
		prev = t
	}
	return strings.TrimSpace(sb.String())
}
