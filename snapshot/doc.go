// Package snapshot provides consistent, read-only views of the published
// order books. Readers never block the pipeline: each view is taken from
// one published book, which is immutable once published.
package snapshot
