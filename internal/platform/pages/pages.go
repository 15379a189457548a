package pages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/goccy/go-yaml"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/platform/logger"
)

var (
	// ErrPageNotFound is returned when no file exists for a reference.
	ErrPageNotFound = errors.New("page not found")

	// ErrInvalidReference is returned for references that cannot name a page.
	ErrInvalidReference = errors.New("invalid page reference")

	// ErrFrontMatter is returned when the front matter block cannot be parsed.
	ErrFrontMatter = errors.New("invalid page front matter")
)

const frontMatterDelimiter = "---"

type frontMatter struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
}

// Source reads pages from a directory.
type Source struct {
	dir    string
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewSource creates a page source rooted at dir.
func NewSource(dir string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	return &Source{
		dir:    dir,
		md:     md,
		logger: logger.With(slog.String("component", "pages")),
	}
}

// Resolve loads and renders the page named by ref.
// Returns ErrPageNotFound or ErrInvalidReference when the reference does not
// name a readable page.
func (s *Source) Resolve(ctx context.Context, ref string) (*domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := fileName(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPageNotFound, ref)
		}
		return nil, fmt.Errorf("reading page %s: %w", ref, err)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not UTF-8 text", ErrPageNotFound, ref)
	}

	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", ref, err)
	}

	var buf bytes.Buffer
	if err := s.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("rendering page %s: %w", ref, err)
	}

	title := meta.Title
	if title == "" {
		title = displayTitle(ref)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("page resolved",
		slog.String("ref", ref),
		slog.Int("html_bytes", buf.Len()))

	return &domain.Page{
		Title:  title,
		Author: meta.Author,
		Source: string(body),
		HTML:   buf.String(),
	}, nil
}

// fileName maps a page reference to its file name. Spaces become
// underscores and the first letter is upper-cased.
func fileName(ref string) (string, error) {
	title := displayTitle(ref)
	if title == "" || title == "." || title == ".." ||
		strings.ContainsAny(title, `/\`) || strings.ContainsRune(title, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return strings.ReplaceAll(title, " ", "_") + ".md", nil
}

// displayTitle normalizes a reference into a page title: underscores become
// spaces, runs of whitespace collapse, and the first letter is upper-cased.
func displayTitle(ref string) string {
	title := strings.Join(strings.Fields(strings.ReplaceAll(ref, "_", " ")), " ")
	if title == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(title)
	return strings.ToUpper(string(r)) + title[size:]
}

// splitFrontMatter separates a leading YAML block delimited by "---" lines
// from the Markdown body.
func splitFrontMatter(data []byte) (frontMatter, []byte, error) {
	var meta frontMatter

	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte(frontMatterDelimiter+"\n")) {
		return meta, normalized, nil
	}

	rest := normalized[len(frontMatterDelimiter)+1:]
	end := bytes.Index(rest, []byte("\n"+frontMatterDelimiter))
	if end < 0 {
		return meta, normalized, nil
	}

	block := rest[:end]
	body := rest[end+len(frontMatterDelimiter)+1:]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}

	if len(bytes.TrimSpace(block)) > 0 {
		if err := yaml.Unmarshal(block, &meta); err != nil {
			return meta, nil, fmt.Errorf("%w: %v", ErrFrontMatter, err)
		}
	}

	return meta, body, nil
}
