package secrets_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tenantd/internal/secrets"
)

func TestKeyboxSealUnsealRoundTrip(t *testing.T) {
	box, err := secrets.NewKeybox(bytes.Repeat([]byte{0xAB}, 32))
	require.NoError(t, err)

	dataKey, err := box.GenerateDataKey()
	require.NoError(t, err)
	require.Len(t, dataKey, 32)

	sealed, err := box.Seal(dataKey)
	require.NoError(t, err)
	assert.NotEqual(t, dataKey, sealed)

	unsealed, err := box.Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, dataKey, unsealed)
}

func TestKeyboxRejectsBadMasterKey(t *testing.T) {
	_, err := secrets.NewKeybox([]byte("short"))
	assert.ErrorIs(t, err, secrets.ErrInvalidMasterKey)
}

func TestKeyboxUnsealRejectsTampering(t *testing.T) {
	box, err := secrets.NewKeybox(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	dataKey, err := box.GenerateDataKey()
	require.NoError(t, err)

	sealed, err := box.Seal(dataKey)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xFF
	_, err = box.Unseal(sealed)
	assert.Error(t, err)
}

func TestKeyboxUnsealWrongMasterKey(t *testing.T) {
	box1, err := secrets.NewKeybox(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	box2, err := secrets.NewKeybox(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	dataKey, err := box1.GenerateDataKey()
	require.NoError(t, err)
	sealed, err := box1.Seal(dataKey)
	require.NoError(t, err)

	_, err = box2.Unseal(sealed)
	assert.Error(t, err)
}
