package storage

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
)

// CDNSigner produces CloudFront signed URLs for object keys.
type CDNSigner struct {
	domain string
	signer *sign.URLSigner
}

func NewCDNSigner(domain, keyID string, key *rsa.PrivateKey) *CDNSigner {
	return &CDNSigner{domain: domain, signer: sign.NewURLSigner(keyID, key)}
}

// LoadCDNSigner reads the PEM encoded RSA key from keyFile.
func LoadCDNSigner(domain, keyID, keyFile string) (*CDNSigner, error) {
	key, err := sign.LoadPEMPrivKeyFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load cloudfront key: %w", err)
	}
	return NewCDNSigner(domain, keyID, key), nil
}

// SignedURL returns https://<domain>/<key> signed with a canned policy
// valid until expires.
func (s *CDNSigner) SignedURL(key string, expires time.Time) (string, error) {
	u, err := s.signer.Sign(fmt.Sprintf("https://%s/%s", s.domain, key), expires)
	if err != nil {
		return "", fmt.Errorf("sign cloudfront url: %w", err)
	}
	return u, nil
}
