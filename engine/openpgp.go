package engine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
	_ "golang.org/x/crypto/ripemd160" // needed to verify v3 fingerprints on older keys

	"github.com/burakince/vault/verr"
)

// OpenPGPEngine is the production Engine, backed by an in-process
// golang.org/x/crypto/openpgp keyring. It holds no on-disk state of its own;
// callers are responsible for seeding it via ImportArmored and for
// persisting exported key material (gpg_keys_dir, spec §6).
type OpenPGPEngine struct {
	mu sync.RWMutex

	// public holds every known public key, keyed by uppercase hex
	// fingerprint.
	public map[string]*openpgp.Entity

	// secret holds the subset of public whose private key material is
	// present and decrypted.
	secret map[string]*openpgp.Entity

	// signer is the key most recently configured via AddSigner, used by
	// Encrypt to sign the message inside the ciphertext.
	signer *openpgp.Entity

	// maxKeylist caps the number of keys FindKeys may return before it
	// reports truncation; zero means unlimited. This models the paging
	// behaviour a subprocess-based engine (e.g. gpg --batch) would have,
	// even though the in-process keyring itself has no such limit.
	maxKeylist int
}

// NewOpenPGPEngine constructs an engine with no keys loaded. Secret keys
// must already have their private material decrypted before being passed to
// LoadSecretEntity; this adapter performs no passphrase prompting itself.
func NewOpenPGPEngine() *OpenPGPEngine {
	return &OpenPGPEngine{
		public: make(map[string]*openpgp.Entity),
		secret: make(map[string]*openpgp.Entity),
	}
}

// SetMaxKeylist configures the truncation threshold used by FindKeys.
func (e *OpenPGPEngine) SetMaxKeylist(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxKeylist = n
}

// LoadSecretEntity registers entity (whose private key and subkeys must
// already be decrypted) as a locally-held secret key.
func (e *OpenPGPEngine) LoadSecretEntity(entity *openpgp.Entity) error {
	if entity.PrivateKey == nil {
		return fmt.Errorf("entity has no private key")
	}
	if entity.PrivateKey.Encrypted {
		return fmt.Errorf("entity private key is still encrypted")
	}
	for _, sk := range entity.Subkeys {
		if sk.PrivateKey != nil && sk.PrivateKey.Encrypted {
			return fmt.Errorf("entity subkey is still encrypted")
		}
	}
	fp := fingerprintOf(entity)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.public[fp] = entity
	e.secret[fp] = entity
	return nil
}

func fingerprintOf(entity *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint[:]))
}

func primaryUserID(entity *openpgp.Entity) string {
	for _, ident := range entity.Identities {
		return ident.Name
	}
	return ""
}

// isTrusted implements spec §4.2: ultimately trusted (a locally-held secret
// key) or carrying a valid local signature by a key whose secret is held
// locally.
func (e *OpenPGPEngine) isTrusted(entity *openpgp.Entity) bool {
	fp := fingerprintOf(entity)
	if _, ok := e.secret[fp]; ok {
		return true
	}
	for _, ident := range entity.Identities {
		for _, sig := range ident.Signatures {
			if sig.IssuerKeyId == nil {
				continue
			}
			for _, signer := range e.secret {
				if signer.PrimaryKey.KeyId != *sig.IssuerKeyId {
					continue
				}
				if err := signer.PrimaryKey.VerifyUserIdSignature(ident.Name, entity.PrimaryKey, sig); err == nil {
					return true
				}
			}
		}
	}
	return false
}

func (e *OpenPGPEngine) keyFor(entity *openpgp.Entity) Key {
	fp := fingerprintOf(entity)
	_, hasSecret := e.secret[fp]
	return Key{
		Fingerprint:   fp,
		PrimaryUserID: primaryUserID(entity),
		Trusted:       e.isTrusted(entity),
		HasSecret:     hasSecret,
	}
}

func matches(entity *openpgp.Entity, id string) bool {
	fp := fingerprintOf(entity)
	if strings.EqualFold(fp, id) || strings.HasSuffix(fp, strings.ToUpper(id)) {
		return true
	}
	idUpper := strings.ToUpper(id)
	if strings.Contains(strings.ToUpper(fmt.Sprintf("%016X", entity.PrimaryKey.KeyId)), idUpper) {
		return true
	}
	for _, ident := range entity.Identities {
		if strings.Contains(strings.ToLower(ident.Name), strings.ToLower(id)) {
			return true
		}
	}
	return false
}

// FindKeys implements Engine.
func (e *OpenPGPEngine) FindKeys(ids []string) ([]Key, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Key
	for _, id := range ids {
		for _, entity := range e.public {
			if !matches(entity, id) {
				continue
			}
			fp := fingerprintOf(entity)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, e.keyFor(entity))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	if e.maxKeylist > 0 && len(out) > e.maxKeylist {
		return nil, &verr.KeylistTruncated{}
	}
	return out, nil
}

// ImportArmored implements Engine.
func (e *OpenPGPEngine) ImportArmored(armored []byte) ([]string, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("could not read armored key material: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var fps []string
	for _, entity := range entities {
		fp := fingerprintOf(entity)
		e.public[fp] = entity
		fps = append(fps, fp)
	}
	return fps, nil
}

// ExportArmored implements Engine.
func (e *OpenPGPEngine) ExportArmored(key Key) ([]byte, error) {
	e.mu.RLock()
	entity, ok := e.public[key.Fingerprint]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown key %q", key.Fingerprint)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, fmt.Errorf("could not start armor encoding: %w", err)
	}
	if err := entity.Serialize(w); err != nil {
		return nil, fmt.Errorf("could not serialize public key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("could not finish armor encoding: %w", err)
	}
	return buf.Bytes(), nil
}

// SignKeyLocally implements Engine.
func (e *OpenPGPEngine) SignKeyLocally(key, signer Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.public[key.Fingerprint]
	if !ok {
		return fmt.Errorf("unknown key %q", key.Fingerprint)
	}
	signerEntity, ok := e.secret[signer.Fingerprint]
	if !ok {
		return fmt.Errorf("signing key %q is not a locally-held secret key", signer.Fingerprint)
	}
	for identName := range target.Identities {
		if err := target.SignIdentity(identName, signerEntity, nil); err != nil {
			return fmt.Errorf("could not sign identity %q of key %q: %w", identName, key.Fingerprint, err)
		}
	}
	return nil
}

// AddSigner implements Engine.
func (e *OpenPGPEngine) AddSigner(key Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	signerEntity, ok := e.secret[key.Fingerprint]
	if !ok {
		return fmt.Errorf("key %q is not a locally-held secret key", key.Fingerprint)
	}
	e.signer = signerEntity
	return nil
}

// Encrypt implements Engine.
func (e *OpenPGPEngine) Encrypt(keys []Key, plaintext io.Reader, ciphertext io.Writer) error {
	e.mu.RLock()
	var recipients []*openpgp.Entity
	for _, key := range keys {
		entity, ok := e.public[key.Fingerprint]
		if !ok {
			e.mu.RUnlock()
			return fmt.Errorf("unknown key %q", key.Fingerprint)
		}
		if !e.isTrusted(entity) {
			e.mu.RUnlock()
			return ErrUnusablePublicKey(fmt.Errorf("key %q (%s) is not trusted", key.Fingerprint, primaryUserID(entity)))
		}
		recipients = append(recipients, entity)
	}
	signer := e.signer
	e.mu.RUnlock()

	w, err := openpgp.Encrypt(ciphertext, recipients, signer, nil, nil)
	if err != nil {
		return ErrUnusablePublicKey(err)
	}
	if _, err := io.Copy(w, plaintext); err != nil {
		return fmt.Errorf("could not write plaintext to encryption stream: %w", err)
	}
	return w.Close()
}

// localKeyRing implements openpgp.KeyRing over exactly the locally-held
// secret keys, and records whether any candidate lookup came up empty so
// Decrypt can tell "wrong key" apart from "no matching key at all".
type localKeyRing struct {
	secrets        []*openpgp.Entity
	sawNoCandidate bool
}

func (k *localKeyRing) KeysById(id uint64) []openpgp.Key {
	var out []openpgp.Key
	for _, e := range k.secrets {
		for _, key := range e.DecryptionKeys() {
			if key.PublicKey.KeyId == id {
				out = append(out, key)
			}
		}
	}
	if len(out) == 0 {
		k.sawNoCandidate = true
	}
	return out
}

func (k *localKeyRing) KeysByIdUsage(id uint64, requiredUsage byte) []openpgp.Key {
	return k.KeysById(id)
}

func (k *localKeyRing) DecryptionKeys() []openpgp.Key {
	var out []openpgp.Key
	for _, e := range k.secrets {
		out = append(out, e.DecryptionKeys()...)
	}
	return out
}

// Decrypt implements Engine.
func (e *OpenPGPEngine) Decrypt(ciphertext io.Reader, plaintext io.Writer) (Key, error) {
	e.mu.RLock()
	var secrets []*openpgp.Entity
	for _, s := range e.secret {
		secrets = append(secrets, s)
	}
	e.mu.RUnlock()

	ring := &localKeyRing{secrets: secrets}
	md, err := openpgp.ReadMessage(ciphertext, ring, nil, &packet.Config{})
	if err != nil {
		if ring.sawNoCandidate {
			return Key{}, ErrNoSecretKey(err)
		}
		return Key{}, fmt.Errorf("could not read PGP message: %w", err)
	}
	if _, err := io.Copy(plaintext, md.UnverifiedBody); err != nil {
		return Key{}, fmt.Errorf("could not read PGP message body: %w", err)
	}
	if md.SignatureError != nil {
		return Key{}, fmt.Errorf("message signature verification failed: %w", md.SignatureError)
	}
	if md.DecryptedWith.Entity == nil {
		return Key{}, ErrNoSecretKey(fmt.Errorf("no private key used to decrypt message"))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.keyFor(md.DecryptedWith.Entity), nil
}

// SecretKeys implements Engine.
func (e *OpenPGPEngine) SecretKeys() ([]Key, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Key
	for _, entity := range e.secret {
		out = append(out, e.keyFor(entity))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}
