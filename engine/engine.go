// Package engine is the Crypto Engine Adapter (spec §4.1): a thin
// abstraction over an OpenPGP engine used to find keys, import/export
// armored key material, locally sign a key with a designated signer,
// encrypt to a recipient set, and decrypt. The concrete implementation is
// built directly on golang.org/x/crypto/openpgp, generalizing the
// entity-based encrypt/decrypt this module's teacher already did for a
// single fixed entity into a multi-recipient, multi-key, trust-aware
// adapter. A FakeEngine is provided for exercising every other package
// without a real keyring.
package engine

import (
	"io"

	"github.com/burakince/vault/verr"
)

// Key is an opaque handle on a public (and possibly secret) key, carrying
// the identifying and trust information the rest of the vault needs.
type Key struct {
	Fingerprint   string
	PrimaryUserID string
	Trusted       bool
	HasSecret     bool
}

// Engine is the contract the rest of the vault programs against; it never
// depends on golang.org/x/crypto/openpgp directly.
type Engine interface {
	// FindKeys resolves the given ids (fingerprints, key ids, or user-id
	// substrings) to keys. It returns verr.KeylistTruncated if the
	// underlying engine could not return the full result set.
	FindKeys(ids []string) ([]Key, error)

	// ImportArmored imports the keys in the given armored blob into the
	// local public keyring, returning the fingerprints imported.
	ImportArmored(armored []byte) ([]string, error)

	// ExportArmored serializes the given key's public material as an
	// armored blob.
	ExportArmored(key Key) ([]byte, error)

	// SignKeyLocally signs every identity of key with signer's secret
	// key, making key trusted for as long as signer's secret key is held
	// locally.
	SignKeyLocally(key, signer Key) error

	// AddSigner configures key as the default signer used by Encrypt to
	// sign the message it encrypts.
	AddSigner(key Key) error

	// Encrypt encrypts plaintext to every key in keys.
	Encrypt(keys []Key, plaintext io.Reader, ciphertext io.Writer) error

	// Decrypt decrypts ciphertext using whichever locally-held secret key
	// matches one of its recipients, returning that key. It returns
	// *verr.NoSecretKey if no local secret key matches.
	Decrypt(ciphertext io.Reader, plaintext io.Writer) (Key, error)

	// SecretKeys returns every key for which a local secret key is held.
	SecretKeys() ([]Key, error)
}

// ErrUnusablePublicKey wraps cause as *verr.UnusablePublicKey, the
// classification Encrypt must produce when the engine refuses to encrypt to
// an untrusted/revoked/expired key.
func ErrUnusablePublicKey(cause error) error {
	return &verr.UnusablePublicKey{Cause: cause}
}

// ErrNoSecretKey wraps cause as *verr.NoSecretKey, the classification
// Decrypt must produce when no local secret key matches any recipient.
func ErrNoSecretKey(cause error) error {
	return &verr.NoSecretKey{Cause: cause}
}
