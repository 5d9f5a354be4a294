package auth

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		scope  string
		want   bool
	}{
		{"exact", []string{common.ScopeManage}, common.ScopeManage, true},
		{"star suffix", []string{common.ScopePrefix + "/upload/*"}, common.UploadScope("internal"), true},
		{"root star", []string{"*"}, common.ScopeManage, true},
		{"prefix without star", []string{common.ScopePrefix + "/upload"}, common.UploadScope("public"), false},
		{"other visibility", []string{common.DownloadScope("public")}, common.DownloadScope("internal"), false},
		{"no scopes", nil, common.DownloadScope("public"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Caller{ID: "c", Scopes: tt.scopes}
			assert.Equal(t, tt.want, c.HasPermission(tt.scope))
		})
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, AnonymousCaller, CallerFromContext(ctx))

	c := CallerFromClaims(&Claims{ClientID: "ci", Scopes: []string{"a"}})
	got := CallerFromContext(WithCaller(ctx, c))
	assert.Equal(t, "ci", got.ID)
	assert.False(t, got.Anonymous)
	assert.Equal(t, []string{"a"}, got.Scopes)
}
