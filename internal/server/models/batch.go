package models

import "time"

// Batch groups the files referenced by one upload request.
type Batch struct {
	ID       int64
	Uploaded time.Time
	Author   string
	Message  string
}

// BatchFile associates a file with a batch under a filename.
type BatchFile struct {
	BatchID  int64
	FileID   int64
	Filename string
}

// NamedFile is a file as it appears in a batch, under its filename.
type NamedFile struct {
	Filename string
	File     File
}
