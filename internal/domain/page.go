package domain

// Page is the resolved content behind an article reference.
type Page struct {
	// Title is the display title of the page, used as the article heading.
	Title string
	// Author is the user who created the page.
	Author string
	// Source is the raw page text. Metadata patterns run against it.
	Source string
	// HTML is the rendered body fragment.
	HTML string
}
