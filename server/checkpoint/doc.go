// Package checkpoint defines the checkpoint registry contract the garbage
// collector consults before any run: the oldest revision any client has
// pinned, below which nothing may be deleted. A SQLite-backed reference
// implementation is provided for local development and tests.
package checkpoint
