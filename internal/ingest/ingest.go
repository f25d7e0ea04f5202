// Package ingest loads local files into the source store. Fetching is
// someone else's job; this package only normalizes already-fetched
// material (plain text, PDF extractions, saved HTML pages) into
// verifiable text.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/store"
)

// Ingestor writes sources into the store
type Ingestor struct {
	store *store.Store
}

// New creates an ingestor
func New(st *store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// IngestFile reads a local file and stores it as a source. HTML files
// are reduced to their text content; everything else is ingested
// verbatim. originURL, when given, marks the source as a website and
// is recorded in the metadata.
func (i *Ingestor) IngestFile(ctx context.Context, path, originURL string) (*model.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	typ := model.SourceTypeDocument
	identifier := path
	name := filepath.Base(path)
	content := string(raw)
	meta := model.SourceMetadata{FetchedAt: time.Now().UTC()}

	if originURL != "" {
		typ = model.SourceTypeWebsite
		identifier = originURL
		meta.URL = originURL
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		title, text, err := HTMLToText(strings.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("extract text from %s: %w", path, err)
		}
		content = text
		meta.Title = title
		if title != "" {
			name = title
		}
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("ingest %s: no text content", path)
	}

	src, err := i.store.PutSource(ctx, typ, identifier, name, content, meta)
	if err != nil {
		return nil, err
	}

	slog.Info("ingested source",
		"id", src.ID, "type", src.Type, "identifier", src.Identifier, "hash", src.ContentHash)
	return src, nil
}

// skipElements are HTML elements whose text is never source content
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// HTMLToText extracts the page title and visible text from HTML.
// Block-level boundaries become newlines so sentences from adjacent
// elements don't fuse.
func HTMLToText(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	var walk func(n *html.Node, inTitle bool)
	walk = func(n *html.Node, inTitle bool) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" {
				inTitle = true
			}
		case html.TextNode:
			if inTitle {
				if title == "" {
					title = strings.TrimSpace(n.Data)
				}
				return
			}
			b.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTitle)
		}

		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteString("\n")
		}
	}
	walk(doc, false)

	return title, collapseBlankLines(b.String()), nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "ul", "ol", "table", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "br", "blockquote", "pre":
		return true
	}
	return false
}

// collapseBlankLines trims trailing space per line and squeezes runs
// of blank lines to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
