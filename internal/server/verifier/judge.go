// Package verifier decides the fate of pending uploads: content that matches
// its claim becomes a trusted instance, anything else is removed.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/storage"
)

// AbandonAfter is how long past its expiry an unresolved grant is kept.
const AbandonAfter = 24 * time.Hour

// Phase is the position of a pending upload in its lifecycle.
type Phase int

const (
	// PhaseIssued: the write window is still open; nothing can be checked.
	PhaseIssued Phase = iota
	// PhaseEligible: the window closed; the object can be verified.
	PhaseEligible
	// PhaseAbandoned: the uploader never completed; drop the grant.
	PhaseAbandoned
)

func (p Phase) String() string {
	switch p {
	case PhaseIssued:
		return "issued"
	case PhaseEligible:
		return "eligible"
	case PhaseAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Schedule places a grant expiring at expires on the lifecycle at now.
func Schedule(now, expires time.Time) Phase {
	if now.Before(expires) {
		return PhaseIssued
	}
	if now.After(expires.Add(AbandonAfter)) {
		return PhaseAbandoned
	}
	return PhaseEligible
}

// Reasons an uploaded object is rejected.
var (
	ErrSizeMismatch    = errors.New("unexpected size")
	ErrDigestMismatch  = errors.New("digest does not match")
	ErrStorageClass    = errors.New("incorrect storage class")
	ErrWebsiteRedirect = errors.New("website redirect set")
)

// Inspection is what was observed about an uploaded object. Sum is the hex
// sha512 of its content; it may be left empty when the size already differs.
type Inspection struct {
	Info storage.ObjectInfo
	Sum  string
}

// Judge returns nil when the inspected object is exactly the claimed file.
func Judge(f *models.File, in Inspection) error {
	if in.Info.Size != f.Size {
		return fmt.Errorf("%w %d; expected %d", ErrSizeMismatch, in.Info.Size, f.Size)
	}
	if in.Sum != f.Digest {
		return ErrDigestMismatch
	}
	if in.Info.StorageClass != "" && in.Info.StorageClass != storage.StorageClassStandard {
		return fmt.Errorf("%w %s", ErrStorageClass, in.Info.StorageClass)
	}
	if in.Info.WebsiteRedirectLocation != "" {
		return ErrWebsiteRedirect
	}
	return nil
}
