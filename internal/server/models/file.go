// Package models defines server-side data models persisted in the catalog.
package models

// Visibility is the access class of a file.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityInternal
}

// File is a piece of content identified by its digest.
type File struct {
	ID         int64
	Digest     string
	Size       int64
	Visibility Visibility
}

// Instance records that a file's bytes were verified in a region.
type Instance struct {
	FileID int64
	Region string
}
