package sqlite

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/fridgesense/store"
)

func TestVectorBLOBRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vec := make([]float32, store.EmbeddingDimensions)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}

	blob, err := float32ArrayToBLOB(vec)
	require.NoError(t, err)
	assert.Len(t, blob, store.EmbeddingDimensions*4)

	decoded, err := blobToFloat32Array(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestVectorBLOBDimensionChecks(t *testing.T) {
	_, err := float32ArrayToBLOB(make([]float32, 512))
	assert.Error(t, err)

	_, err = blobToFloat32Array(make([]byte, 100))
	assert.Error(t, err)
}
