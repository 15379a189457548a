// Package converter runs the external program that turns an assembled HTML
// document into the requested output format (PDF, ePub, ...).
//
// Each output format is configured with a command template such as
//
//	pandoc {INPUT} -o {OUTPUT} --metadata title={METADATA:title}
//
// The template is split into an argument vector once, then the {INPUT},
// {OUTPUT} and {METADATA:key} placeholders are substituted inside individual
// arguments. Substituted values never pass through a shell and are never
// re-split, so metadata extracted from untrusted page text cannot inject
// extra arguments or shell syntax.
package converter
