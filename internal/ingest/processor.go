package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ProcessedDocument is the extracted text of an uploaded file, ready for
// chunking.
type ProcessedDocument struct {
	Filename    string
	Title       string
	Content     string
	ContentHash string
	MimeType    string
	Size        int
	UploadedAt  time.Time
}

// Processor extracts plain text from supported upload formats. Text,
// markdown, HTML and PDF are extracted; office formats and other binary
// content are rejected rather than ingested as raw bytes.
type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

// Process extracts content from the uploaded bytes. The content hash is
// carried in chunk metadata for deduplication.
func (p *Processor) Process(content []byte, filename string) (ProcessedDocument, error) {
	mimeType := mimeTypeFor(filename)
	hash := sha256.Sum256(content)

	doc := ProcessedDocument{
		Filename:    filename,
		Title:       titleFor(filename),
		ContentHash: hex.EncodeToString(hash[:]),
		MimeType:    mimeType,
		Size:        len(content),
		UploadedAt:  time.Now().UTC(),
	}

	switch mimeType {
	case "text/html":
		text, title, err := extractHTML(content, filename)
		if err != nil {
			return ProcessedDocument{}, fmt.Errorf("extract html: %w", err)
		}
		doc.Content = text
		if title != "" {
			doc.Title = title
		}
	case mimePDF:
		text, err := extractPDF(content)
		if err != nil {
			return ProcessedDocument{}, fmt.Errorf("extract pdf: %w", err)
		}
		doc.Content = text
	case mimeDOCX, mimeXLSX:
		return ProcessedDocument{}, fmt.Errorf("unsupported document type %s for %s", mimeType, filename)
	default:
		if !utf8.Valid(content) {
			return ProcessedDocument{}, fmt.Errorf("document %s is not valid UTF-8 text", filename)
		}
		doc.Content = string(content)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return ProcessedDocument{}, fmt.Errorf("document %s has no extractable text", filename)
	}
	return doc, nil
}

func extractHTML(content []byte, filename string) (string, string, error) {
	pageURL := &url.URL{Scheme: "file", Path: "/" + filename}
	article, err := readability.FromReader(strings.NewReader(string(content)), pageURL)
	if err != nil {
		return "", "", err
	}
	return article.TextContent, article.Title, nil
}

// extractPDF pulls the text layer out of a PDF. The parser panics on some
// malformed files, so the recover guard turns those into errors.
func extractPDF(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func mimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return "text/html"
	case ".md", ".markdown":
		return "text/markdown"
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".xlsx":
		return mimeXLSX
	default:
		return "text/plain"
	}
}

func titleFor(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
