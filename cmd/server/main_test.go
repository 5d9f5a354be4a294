package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "worker", "check-pending-uploads", "replicate", "migrate", "token"} {
		assert.Contains(t, names, want)
	}
}

func TestTokenCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"token",
		"--database-dsn", "memory://",
		"--disable-notifications",
		"--secret-key", "s3cr3t",
		"--client-id", "ci@example.com",
		"--scope", "project:releng:services/tooltool/api/upload/public",
		"--scope", "project:releng:services/tooltool/api/download/*",
	})
	require.NoError(t, root.Execute())

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), []byte("s3cr3t"))
	require.NoError(t, err)
	assert.Equal(t, "ci@example.com", claims.ClientID)
	assert.Len(t, claims.Scopes, 2)
}

func TestTokenCmd_RequiresClientID(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--database-dsn", "memory://"})
	assert.Error(t, root.Execute())
}

func TestCheckPendingUploadsCmd_MemoryCatalog(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"check-pending-uploads", "--database-dsn", "memory://", "--disable-notifications", "--log-level", "error"})
	assert.NoError(t, root.Execute())
}
