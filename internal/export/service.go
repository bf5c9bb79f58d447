package export

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docbridge/internal/content"
)

// Generator produces text from a system instruction and a user prompt.
type Generator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

// BlobStore persists document bytes and reads them back by URL.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DocumentStore defines the interface for document records
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
}

const contentTreeSystem = `You write documents as a JSON array of blocks.
Each block is an object {"type": "heading"|"paragraph"|"bullet"|"table", "content": string, "level"?: int, "style"?: "bold"|"italic"|"code"|"normal"}.
Headings use level 1 to 6. Bullet content holds one item per line. Table content holds one row per line with cells separated by "|"; the first row is the header.
Reply with the JSON array only.`

// Creator turns prompts, Markdown and uploads into stored documents.
type Creator struct {
	docs   DocumentStore
	blobs  BlobStore
	gen    Generator
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewCreator creates a document creator. gen may be nil, in which case generated
// documents fall back to empty ones.
func NewCreator(docs DocumentStore, blobs BlobStore, gen Generator, logger *zap.Logger) *Creator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{
		docs:   docs,
		blobs:  blobs,
		gen:    gen,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateFromPrompt asks the generator for a content tree. Generation and parse
// failures are logged and produce an empty document, never an error.
func (c *Creator) CreateFromPrompt(ctx context.Context, title, prompt string) (Document, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = "Write a document titled " + title + "."
	}
	nodes, err := c.generateTree(ctx, prompt)
	if err != nil {
		c.logger.Warn("content generation failed, writing empty document",
			zap.String("title", title), zap.Error(err))
		nodes = []content.Node{}
	}
	return c.create(ctx, title, nodes)
}

// CreateFromMarkdown converts Markdown deterministically.
func (c *Creator) CreateFromMarkdown(ctx context.Context, title, markdown string) (Document, error) {
	return c.create(ctx, title, FromMarkdown(markdown))
}

// RegisterUpload records an already stored file without converting it.
func (c *Creator) RegisterUpload(ctx context.Context, title, sourceURL string) (Document, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return Document{}, errors.New("source url is required")
	}
	now := c.now().UTC()
	id := c.newID()
	doc := Document{
		ID:        id,
		Key:       id,
		Title:     title,
		URL:       sourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.docs.InsertDocument(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (c *Creator) create(ctx context.Context, title string, nodes []content.Node) (Document, error) {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	data, err := WriteDOCX(nodes, Meta{Title: title})
	if err != nil {
		return Document{}, fmt.Errorf("write docx: %w", err)
	}

	now := c.now().UTC()
	name := BlobName(title, now)
	url, err := c.blobs.Put(ctx, name, data, MimeDOCX)
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	id := c.newID()
	doc := Document{
		ID:        id,
		Key:       id,
		Title:     title,
		URL:       url,
		BlobName:  name,
		Nodes:     nodes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.docs.InsertDocument(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// Revise regenerates the whole document from its current text and the instructions,
// overwriting the same blob. On failure the unchanged document is returned together
// with an error wrapping ErrGeneration. If the record cannot be updated the
// previous bytes are written back so blob and record stay in step.
func (c *Creator) Revise(ctx context.Context, documentID, instructions string) (Document, error) {
	doc, err := c.docs.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}

	current, err := c.documentText(ctx, doc)
	if err != nil {
		c.logger.Warn("could not read current document text",
			zap.String("document_id", doc.ID), zap.Error(err))
	}

	prompt := fmt.Sprintf("Document title: %s\n\nCurrent document:\n%s\n\nRewrite the complete document applying these instructions:\n%s",
		doc.Title, current, instructions)
	nodes, err := c.generateTree(ctx, prompt)
	if err != nil {
		c.logger.Warn("revision failed, keeping existing document",
			zap.String("document_id", doc.ID), zap.Error(err))
		return doc, err
	}

	data, err := WriteDOCX(nodes, Meta{Title: doc.Title})
	if err != nil {
		return doc, fmt.Errorf("%w: write docx: %v", ErrGeneration, err)
	}

	now := c.now().UTC()
	name := doc.BlobName
	var previous []byte
	if name == "" {
		name = BlobName(doc.Title, now)
	} else if doc.URL != "" {
		if previous, err = c.blobs.Fetch(ctx, doc.URL); err != nil {
			c.logger.Warn("could not keep current document bytes for restore",
				zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	url, err := c.blobs.Put(ctx, name, data, MimeDOCX)
	if err != nil {
		return doc, fmt.Errorf("%w: store document: %v", ErrGeneration, err)
	}

	revised := doc
	revised.URL = url
	revised.BlobName = name
	revised.Nodes = nodes
	// the editor caches by key, so a new revision needs a new one
	revised.Key = doc.ID + "-" + fmt.Sprint(now.UnixMilli())
	revised.UpdatedAt = now
	if err := c.docs.UpdateDocument(ctx, revised); err != nil {
		if previous != nil {
			if _, restoreErr := c.blobs.Put(context.WithoutCancel(ctx), name, previous, MimeDOCX); restoreErr != nil {
				c.logger.Error("could not restore document after failed revision",
					zap.String("document_id", doc.ID), zap.Error(restoreErr))
			}
		}
		return doc, fmt.Errorf("update document: %w", err)
	}
	return revised, nil
}

// Export generates an export in the requested format
func (c *Creator) Export(ctx context.Context, documentID string, format Format) (*Result, error) {
	doc, err := c.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	switch format {
	case FormatDOCX:
		data, err := c.documentBytes(ctx, doc)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: SanitizeFilename(doc.Title) + ".docx", MimeType: MimeDOCX}, nil
	case FormatHTML, FormatPDF:
		page, err := c.previewHTML(ctx, doc)
		if err != nil {
			return nil, err
		}
		if format == FormatHTML {
			return &Result{Data: []byte(page), Filename: SanitizeFilename(doc.Title) + ".html", MimeType: "text/html; charset=utf-8"}, nil
		}
		return RenderPDF(ctx, page, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (c *Creator) previewHTML(ctx context.Context, doc Document) (string, error) {
	nodes := doc.Nodes
	if len(nodes) == 0 && doc.URL != "" {
		text, err := c.documentText(ctx, doc)
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(text, "\n") {
			nodes = append(nodes, content.NewParagraph(content.Plain(line)))
		}
	}
	page, err := RenderHTML(TemplateData{
		Title:       doc.Title,
		ContentHTML: template.HTML(NodesToHTML(nodes)),
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return page, nil
}

// documentBytes prefers the stored file, which carries editor-side changes, over
// re-rendering the content tree.
func (c *Creator) documentBytes(ctx context.Context, doc Document) ([]byte, error) {
	if doc.URL != "" {
		data, err := c.blobs.Fetch(ctx, doc.URL)
		if err == nil {
			return data, nil
		}
		if len(doc.Nodes) == 0 {
			return nil, fmt.Errorf("fetch document: %w", err)
		}
		c.logger.Warn("stored document unavailable, rendering content tree",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
	return WriteDOCX(doc.Nodes, Meta{Title: doc.Title})
}

// DocumentText returns the visible text of a stored document, one line per
// paragraph.
func (c *Creator) DocumentText(ctx context.Context, documentID string) (string, error) {
	doc, err := c.docs.GetDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("get document: %w", err)
	}
	return c.documentText(ctx, doc)
}

// documentText reads the stored file first so the text matches what the editor
// shows.
func (c *Creator) documentText(ctx context.Context, doc Document) (string, error) {
	if doc.URL != "" {
		data, err := c.blobs.Fetch(ctx, doc.URL)
		if err == nil {
			return ExtractText(data)
		}
		if len(doc.Nodes) == 0 {
			return "", fmt.Errorf("fetch document: %w", err)
		}
		c.logger.Warn("stored document unavailable, using content tree",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
	lines := make([]string, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		lines = append(lines, content.Text(n))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Creator) generateTree(ctx context.Context, prompt string) ([]content.Node, error) {
	if c.gen == nil {
		return nil, fmt.Errorf("%w: no generator configured", ErrGeneration)
	}
	reply, err := c.gen.GenerateText(ctx, contentTreeSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	nodes, err := FromContentTree([]byte(reply))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return nodes, nil
}
