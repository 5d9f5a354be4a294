package models

import "time"

// PendingUpload is a write grant issued for (file, region) that has not been
// verified yet. There is at most one per (file, region); reissuing a grant
// overwrites Expires.
type PendingUpload struct {
	FileID  int64
	Region  string
	Expires time.Time
}
