package secrets

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "hunter2", opened)
}

func TestEmptyValueStaysEmpty(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("")
	require.NoError(t, err)
	require.Empty(t, sealed)

	opened, err := box.Open("")
	require.NoError(t, err)
	require.Empty(t, opened)
}

func TestNonceMakesCiphertextUnique(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	a, err := box.Seal("same password")
	require.NoError(t, err)
	b, err := box.Seal("same password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestTamperedCiphertextFails(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("bios-pass")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = box.Open(base64.StdEncoding.EncodeToString(raw))
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Open("not base64 at all!!!")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestNewBoxRejectsBadKeys(t *testing.T) {
	_, err := NewBox("abc")
	require.Error(t, err)

	_, err = NewBox(strings.Repeat("zz", 32))
	require.Error(t, err)
}
