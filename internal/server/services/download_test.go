package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	key     string
	expires time.Time
	err     error
}

func (s *fakeSigner) SignedURL(key string, expires time.Time) (string, error) {
	s.key, s.expires = key, expires
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.test/" + key + "?Signature=x", nil
}

func TestDownloadFile_Region(t *testing.T) {
	tests := []struct {
		name      string
		held      []string
		preferred string
		want      string
	}{
		{"preferred holds instance", []string{"us-east-1", "us-west-2"}, "us-west-2", "https://us-west-2.storage.test/"},
		{"preferred lacks instance", []string{"us-west-2"}, "us-east-1", "https://us-west-2.storage.test/"},
		{"no preference", []string{"us-east-1", "us-west-2"}, "", "https://us-east-1.storage.test/"},
		{"unconfigured instance ignored", []string{"eu-central-1", "us-west-2"}, "eu-central-1", "https://us-west-2.storage.test/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			file := f.verified(t, "hello", models.VisibilityPublic, tt.held...)
			svc := NewDownloadService(f.deps, nil, f.cfg)

			u, err := svc.DownloadFile(context.Background(), auth.AnonymousCaller, file.Digest, tt.preferred)
			require.NoError(t, err)
			assert.Contains(t, u, tt.want+"sha512/"+file.Digest)
			assert.Contains(t, u, "method=GET&expires=60")
		})
	}
}

func TestDownloadFile_OnlyUnconfiguredRegions(t *testing.T) {
	f := newFixture(t)
	file := f.verified(t, "hello", models.VisibilityPublic, "eu-central-1")
	svc := NewDownloadService(f.deps, nil, f.cfg)

	_, err := svc.DownloadFile(context.Background(), auth.AnonymousCaller, file.Digest, "")
	assert.ErrorIs(t, err, common.ErrorMisconfigured)
}

func TestDownloadFile_NotFound(t *testing.T) {
	f := newFixture(t)
	pending := f.verified(t, "pending", models.VisibilityPublic)
	svc := NewDownloadService(f.deps, nil, f.cfg)

	_, err := svc.DownloadFile(context.Background(), auth.AnonymousCaller, pending.Digest, "")
	assert.ErrorIs(t, err, common.ErrorNotFound, "unverified content is not downloadable")

	_, err = svc.DownloadFile(context.Background(), auth.AnonymousCaller, sum([]byte("unknown")), "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = svc.DownloadFile(context.Background(), auth.AnonymousCaller, "xyz", "")
	assert.ErrorIs(t, err, common.ErrorMalformed)
}

func TestDownloadFile_Permissions(t *testing.T) {
	internalReader := auth.Caller{ID: "r", Scopes: []string{common.DownloadScope("internal")}}
	publicReader := auth.Caller{ID: "p", Scopes: []string{common.DownloadScope("public")}}

	tests := []struct {
		name            string
		visibility      models.Visibility
		anonymousPublic bool
		caller          auth.Caller
		wantErr         error
	}{
		{"anonymous public", models.VisibilityPublic, true, auth.AnonymousCaller, nil},
		{"anonymous public disabled", models.VisibilityPublic, false, auth.AnonymousCaller, common.ErrorForbidden},
		{"public scope with anonymous disabled", models.VisibilityPublic, false, publicReader, nil},
		{"anonymous internal", models.VisibilityInternal, true, auth.AnonymousCaller, common.ErrorForbidden},
		{"public scope internal file", models.VisibilityInternal, true, publicReader, common.ErrorForbidden},
		{"internal scope", models.VisibilityInternal, true, internalReader, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.AllowAnonymousPublicDownload = tt.anonymousPublic
			file := f.verified(t, "hello", tt.visibility, "us-east-1")
			svc := NewDownloadService(f.deps, nil, f.cfg)

			_, err := svc.DownloadFile(context.Background(), tt.caller, file.Digest, "")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDownloadFile_CDN(t *testing.T) {
	f := newFixture(t)
	file := f.verified(t, "hello", models.VisibilityPublic, "us-east-1")
	signer := &fakeSigner{}
	svc := NewDownloadService(f.deps, signer, f.cfg)

	u, err := svc.DownloadFile(context.Background(), auth.AnonymousCaller, file.Digest, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/sha512/"+file.Digest+"?Signature=x", u)
	assert.Equal(t, f.now.Add(60*time.Second), signer.expires)
	assert.Empty(t, f.store.Calls())

	signer.err = errors.New("bad key")
	_, err = svc.DownloadFile(context.Background(), auth.AnonymousCaller, file.Digest, "")
	assert.ErrorContains(t, err, "bad key")
}
