package providers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

// ErrUnsupportedDocument is returned for file types with no extractor.
var ErrUnsupportedDocument = errors.New("unsupported document type")

const (
	// NoTextResponse is the analysis result for documents with no text.
	NoTextResponse = "Could not extract text from document."
	noAnalysis     = "No analysis produced."

	analyzePrompt = "Summarize and analyze the following document. " +
		"Extract key points, action items, and any entities.\n\n"
)

// DocumentReader extracts text from local documents and summarizes it.
type DocumentReader struct {
	gen router.Answerer
}

// NewDocumentReader creates a reader. gen may be nil if only Extract is used.
func NewDocumentReader(gen router.Answerer) *DocumentReader {
	return &DocumentReader{gen: gen}
}

// Extract returns the plain text of path, capped for prompting.
func (d *DocumentReader) Extract(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv", ".log":
		text, err = readPlain(path)
	case ".pdf":
		text, err = readPDF(path)
	case ".xlsx", ".xlsm":
		text, err = readWorkbook(path)
	case ".docx":
		text, err = readDocx(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, filepath.Ext(path))
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return truncate(strings.TrimSpace(text), maxPromptChars), nil
}

// Analyze extracts path and asks the model for key points.
func (d *DocumentReader) Analyze(ctx context.Context, path string) (string, error) {
	text, err := d.Extract(path)
	if err != nil {
		return "", err
	}
	if text == "" {
		return NoTextResponse, nil
	}
	if d.gen == nil {
		return "", router.ErrNotConfigured
	}
	out, err := d.gen.Generate(ctx, analyzePrompt+text)
	if err != nil {
		return "", fmt.Errorf("analyze document: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return noAnalysis, nil
	}
	return out, nil
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func readWorkbook(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// readDocx pulls the run text out of word/document.xml.
func readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", errors.New("word/document.xml not found")
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}
