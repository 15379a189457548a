// Package assembler turns a book description into the single HTML document
// handed to the converter, together with the metadata extracted on the way.
package assembler
