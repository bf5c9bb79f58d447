// Package export converts AI-authored content into word-processing documents and
// renders stored documents into preview formats.
package export

import (
	"errors"
	"time"

	"docbridge/internal/content"
)

// Format represents an output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// MimeDOCX is the media type of a WordprocessingML package.
const MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Meta carries document properties written into the package.
type Meta struct {
	Title   string
	Creator string
}

// Document is a stored document artifact.
type Document struct {
	ID    string
	Key   string
	Title string
	URL   string
	// BlobName is the storage object name; empty for uploaded documents.
	BlobName  string
	Nodes     []content.Node
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result contains an export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrGeneration indicates the content generator failed or returned unusable output.
	ErrGeneration = errors.New("content generation failed")
	// ErrInvalidContentTree indicates a JSON content tree failed schema validation.
	ErrInvalidContentTree = errors.New("invalid content tree")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates an export format this service cannot produce.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
