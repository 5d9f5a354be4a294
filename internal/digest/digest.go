// Package digest validates content identifiers and derives object keys from them.
package digest

import (
	"crypto/sha512"
	"encoding/hex"
	"io"

	"github.com/dmitrijs2005/tooltool/internal/common"
)

// Algorithm is the only supported content hash.
const Algorithm = "sha512"

// Length is the length of a hex-encoded sha512 digest.
const Length = sha512.Size * 2

// Validate reports whether d is a well-formed lowercase hex sha512 digest.
func Validate(d string) error {
	if len(d) != Length {
		return common.Malformed("invalid %s digest", Algorithm)
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return common.Malformed("invalid %s digest", Algorithm)
		}
	}
	return nil
}

// KeyName returns the storage key under which content with digest d is kept.
func KeyName(d string) string {
	return Algorithm + "/" + d
}

// Sum reads r to the end and returns its hex digest and byte count.
func Sum(r io.Reader) (string, int64, error) {
	h := sha512.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
