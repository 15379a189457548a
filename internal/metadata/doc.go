// Package metadata derives key/value document metadata (title, creator, ...)
// from article text using configured regular expressions.
//
// Extraction never overwrites a key that is already set, so callers control
// precedence by the order in which they feed text in.
package metadata
