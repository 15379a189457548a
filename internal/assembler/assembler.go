package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/metadata"
	"github.com/phrazzld/bookrender/internal/platform/logger"
)

// Well-known metadata keys filled from the book itself.
const (
	MetadataTitle       = "title"
	MetadataCreatorUser = "creator-user"
)

// PageSource resolves an article reference to its content.
type PageSource interface {
	Resolve(ctx context.Context, ref string) (*domain.Page, error)
}

// Config holds the assembly settings.
type Config struct {
	// CanonicalOrigin is prefixed to root-relative resource URLs,
	// e.g. "https://wiki.example.org". Empty disables rewriting.
	CanonicalOrigin string
	// Rules extract metadata from the source text of each article.
	Rules metadata.Rules
	// Defaults fill metadata keys nothing else provided.
	Defaults map[string]string
}

// Document is the assembled input of one conversion.
type Document struct {
	HTML     string
	Metadata metadata.Metadata
	// Articles is the number of items that resolved and were included.
	Articles int
}

// Assembler builds documents from books.
type Assembler struct {
	pages  PageSource
	cfg    Config
	logger *slog.Logger
}

// New creates an Assembler.
func New(pages PageSource, cfg Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.CanonicalOrigin = strings.TrimRight(cfg.CanonicalOrigin, "/")
	return &Assembler{
		pages:  pages,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "assembler")),
	}
}

// Assemble resolves every article of book and concatenates them into one
// HTML document.
//
// Items that are not articles, or whose reference does not resolve, are
// skipped without error. Only context cancellation aborts assembly.
func (a *Assembler) Assemble(ctx context.Context, book *domain.BookSpec) (*Document, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	md := metadata.Metadata{}
	if book.Title != "" {
		md.SetDefault(MetadataTitle, book.Title)
	}

	root := element(atom.Html)
	if book.Title != "" {
		head := element(atom.Head)
		head.AppendChild(textElement(atom.Title, book.Title))
		root.AppendChild(head)
	}

	body := element(atom.Body)
	root.AppendChild(body)

	if book.Subtitle != "" {
		body.AppendChild(textElement(atom.H2, book.Subtitle))
	}

	included := 0
	articles := book.Articles()
	if skipped := len(book.Items) - len(articles); skipped > 0 {
		log.Debug("skipping non-article book items", slog.Int("count", skipped))
	}

	for _, item := range articles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := a.pages.Resolve(ctx, item.Ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Debug("skipping unresolved article",
				slog.String("ref", item.Ref),
				slog.String("reason", err.Error()))
			continue
		}

		md.SetDefault(MetadataTitle, page.Title)
		if page.Author != "" {
			md.SetDefault(MetadataCreatorUser, page.Author)
		}
		md = metadata.Extract(page.Source, a.cfg.Rules, md)

		fragment, err := html.ParseFragment(strings.NewReader(page.HTML), element(atom.Body))
		if err != nil {
			log.Warn("skipping article with unparseable HTML",
				slog.String("ref", item.Ref),
				slog.String("error", err.Error()))
			continue
		}

		body.AppendChild(textElement(atom.H1, page.Title))
		for _, n := range fragment {
			body.AppendChild(n)
		}
		body.AppendChild(&html.Node{Type: html.TextNode, Data: "\n\n"})
		included++
	}

	md.MergeDefaults(a.cfg.Defaults)

	if a.cfg.CanonicalOrigin != "" {
		rewriteNode(root, a.cfg.CanonicalOrigin)
	}

	var buf strings.Builder
	if err := html.Render(&buf, root); err != nil {
		return nil, fmt.Errorf("rendering assembled document: %w", err)
	}

	log.Debug("book assembled",
		slog.Int("items", len(book.Items)),
		slog.Int("articles", included),
		slog.Any("metadata", md))

	return &Document{
		HTML:     buf.String(),
		Metadata: md,
		Articles: included,
	}, nil
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func textElement(a atom.Atom, text string) *html.Node {
	n := element(a)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

// rewriteNode prefixes root-relative resource URLs with origin: the src
// attribute of any element and the href of <link> elements.
func rewriteNode(n *html.Node, origin string) {
	if n.Type == html.ElementNode {
		for i, attr := range n.Attr {
			if attr.Namespace != "" {
				continue
			}
			if attr.Key == "src" || (attr.Key == "href" && n.DataAtom == atom.Link) {
				if isRootRelative(attr.Val) {
					n.Attr[i].Val = origin + attr.Val
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteNode(c, origin)
	}
}

// isRootRelative reports whether u is a path starting at the server root.
// Protocol-relative URLs ("//host/...") are left alone.
func isRootRelative(u string) bool {
	return strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//")
}
