// Package archive persists finished consultation documents as JSON files on
// local disk or in an S3-compatible bucket.
package archive
