// Package pages resolves article references to Markdown files on disk and
// renders them to HTML fragments.
//
// A page named "Main Page" lives in <dir>/Main_Page.md. An optional YAML
// front matter block supplies the display title and author:
//
//	---
//	title: Main Page
//	author: Alice
//	---
//	Page body in Markdown.
package pages
