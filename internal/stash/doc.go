// Package stash stores finished artifacts under content-derived keys and
// hands them back for download.
package stash
