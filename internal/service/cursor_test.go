package service_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddr-tools/gitstatusd/internal/service"
)

func TestEncodeCursor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ZGRyLXRlc3QtMQ", service.EncodeCursor("ddr-test-1")) // base64url("ddr-test-1")
}

func TestDecodeCursor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cursor   string
		expected string
		wantErr  bool
	}{
		{name: "empty cursor", cursor: "", expected: ""},
		{name: "round trip", cursor: service.EncodeCursor("ddr-densho-1000"), expected: "ddr-densho-1000"},
		{name: "not base64", cursor: "!!!", wantErr: true},
		{name: "not a collection id", cursor: base64.RawURLEncoding.EncodeToString([]byte("../etc")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := service.DecodeCursor(tt.cursor)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}
