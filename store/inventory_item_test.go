package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuantity(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    int
		wantErr bool
	}{
		{name: "nil", raw: nil, want: 0},
		{name: "int", raw: 12, want: 12},
		{name: "int32", raw: int32(3), want: 3},
		{name: "int64", raw: int64(7), want: 7},
		{name: "float", raw: float64(2), want: 2},
		{name: "numeric string", raw: "12", want: 12},
		{name: "padded string", raw: "  5 ", want: 5},
		{name: "decimal string", raw: "2.0", want: 2},
		{name: "empty string", raw: "", want: 0},
		{name: "bytes", raw: []byte("9"), want: 9},
		{name: "negative clamps", raw: -3, want: 0},
		{name: "negative string clamps", raw: "-1", want: 0},
		{name: "garbage string", raw: "a dozen", wantErr: true},
		{name: "unsupported type", raw: []string{"1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQuantity(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "milk", CanonicalName("  Milk "))
	assert.Equal(t, "greek yogurt", CanonicalName("Greek Yogurt"))
	assert.Equal(t, "", CanonicalName("   "))
}
