package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burakince/vault/verr"
)

func TestFakeEngineEncryptDecryptRoundTrip(t *testing.T) {
	e := NewFakeEngine()
	e.AddKey(&FakeKey{Fingerprint: "AAAA", PrimaryUserID: "alice", HasSecret: true, UltimateTrust: true})

	var ciphertext bytes.Buffer
	require.NoError(t, e.Encrypt([]Key{{Fingerprint: "AAAA"}}, strings.NewReader("hello"), &ciphertext))

	var plaintext bytes.Buffer
	key, err := e.Decrypt(&ciphertext, &plaintext)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", key.Fingerprint)
	assert.Equal(t, "hello", plaintext.String())
}

func TestFakeEngineEncryptRejectsUntrustedKey(t *testing.T) {
	e := NewFakeEngine()
	e.AddKey(&FakeKey{Fingerprint: "AAAA", PrimaryUserID: "alice"})

	var ciphertext bytes.Buffer
	err := e.Encrypt([]Key{{Fingerprint: "AAAA"}}, strings.NewReader("hi"), &ciphertext)
	require.Error(t, err)
	var unusable *verr.UnusablePublicKey
	require.ErrorAs(t, err, &unusable)
}

func TestFakeEngineDecryptNoSecretKey(t *testing.T) {
	e := NewFakeEngine()
	e.AddKey(&FakeKey{Fingerprint: "AAAA", PrimaryUserID: "alice", HasSecret: true, UltimateTrust: true})
	e.AddKey(&FakeKey{Fingerprint: "BBBB", PrimaryUserID: "bob"})

	var ciphertext bytes.Buffer
	require.NoError(t, e.Encrypt([]Key{{Fingerprint: "AAAA"}}, strings.NewReader("hi"), &ciphertext))

	other := NewFakeEngine()
	other.AddKey(&FakeKey{Fingerprint: "BBBB", PrimaryUserID: "bob", HasSecret: true})

	var plaintext bytes.Buffer
	_, err := other.Decrypt(&ciphertext, &plaintext)
	require.Error(t, err)
	var noSecret *verr.NoSecretKey
	require.ErrorAs(t, err, &noSecret)
}

func TestFakeEngineFindKeysTruncation(t *testing.T) {
	e := NewFakeEngine()
	e.AddKey(&FakeKey{Fingerprint: "AAAA", PrimaryUserID: "alice"})
	e.AddKey(&FakeKey{Fingerprint: "BBBB", PrimaryUserID: "bob"})
	e.MaxKeylist = 1

	_, err := e.FindKeys([]string{"a", "b"})
	require.Error(t, err)
	var truncated *verr.KeylistTruncated
	require.ErrorAs(t, err, &truncated)
}

func TestFakeEngineSignKeyLocallyGrantsTrust(t *testing.T) {
	e := NewFakeEngine()
	e.AddKey(&FakeKey{Fingerprint: "OWNER", PrimaryUserID: "owner", HasSecret: true})
	e.AddKey(&FakeKey{Fingerprint: "CAROL", PrimaryUserID: "carol"})

	keys, err := e.FindKeys([]string{"carol"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.False(t, keys[0].Trusted)

	require.NoError(t, e.SignKeyLocally(keys[0], Key{Fingerprint: "OWNER"}))

	keys, err = e.FindKeys([]string{"carol"})
	require.NoError(t, err)
	assert.True(t, keys[0].Trusted)
}

func TestFakeEngineExportImportArmoredRoundTrips(t *testing.T) {
	src := NewFakeEngine()
	src.AddKey(&FakeKey{Fingerprint: "AAAA", PrimaryUserID: "alice"})

	armored, err := src.ExportArmored(Key{Fingerprint: "AAAA"})
	require.NoError(t, err)

	dst := NewFakeEngine()
	fps, err := dst.ImportArmored(armored)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA"}, fps)

	keys, err := dst.FindKeys([]string{"AAAA"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "alice", keys[0].PrimaryUserID)
}
