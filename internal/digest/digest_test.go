package digest

import (
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha512 of "\n"
const newlineDigest = "be688838ca8686e5c90689bf2ab585cef1137c999b48c70b92f67a5c34dc15697b5d11c982ed6d71be1e1e7f7b4e0733884aa97c3f7a339a8ed03577cf74be09"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "valid", in: newlineDigest},
		{name: "empty", in: "", wantErr: true},
		{name: "too short", in: newlineDigest[:127], wantErr: true},
		{name: "too long", in: newlineDigest + "0", wantErr: true},
		{name: "uppercase", in: strings.ToUpper(newlineDigest), wantErr: true},
		{name: "non hex", in: "z" + newlineDigest[1:], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrorMalformed))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestKeyName(t *testing.T) {
	assert.Equal(t, "sha512/"+newlineDigest, KeyName(newlineDigest))
}

func TestSum(t *testing.T) {
	d, n, err := Sum(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Equal(t, newlineDigest, d)
	assert.Equal(t, int64(1), n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestSum_ReadError(t *testing.T) {
	_, _, err := Sum(failingReader{})
	assert.EqualError(t, err, "read failed")
}
