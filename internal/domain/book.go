package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ItemKind identifies what a book item refers to
type ItemKind string

// Known item kinds. Only articles are rendered; chapters are accepted
// but skipped.
const (
	ItemKindArticle ItemKind = "article"
	ItemKindChapter ItemKind = "chapter"
)

// Item is one entry of a book: a reference to a page.
type Item struct {
	Kind ItemKind `json:"type"`
	Ref  string   `json:"title"`
}

// BookSpec describes the book a client wants rendered. It is consumed once
// by the render pipeline and never stored.
type BookSpec struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Items    []Item `json:"items"`
}

// ParseBookSpec decodes a JSON book description.
// Any decoding problem, including a JSON value that is not an object,
// is reported as ErrMalformedBookSpec.
func ParseBookSpec(data []byte) (*BookSpec, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedBookSpec)
	}

	var book BookSpec
	if err := json.Unmarshal(trimmed, &book); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBookSpec, err)
	}

	return &book, nil
}

// Articles returns the items of kind article, in book order.
func (b *BookSpec) Articles() []Item {
	var articles []Item
	for _, item := range b.Items {
		if item.Kind == ItemKindArticle {
			articles = append(articles, item)
		}
	}
	return articles
}
