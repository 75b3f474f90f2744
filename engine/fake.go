package engine

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/burakince/vault/verr"
)

// FakeEngine is an in-memory Engine used by every other package's tests
// (spec §9, "trait-like polymorphism ... provide a concrete OpenPGP
// implementation and an in-memory test fake"). Ciphertext is a readable
// tagged format, not real OpenPGP, so tests can assert on it directly.
type FakeEngine struct {
	// Keys holds every known key, by fingerprint.
	Keys map[string]*FakeKey

	// Signer is the key set by the most recent AddSigner call.
	Signer string

	// MaxKeylist, if non-zero, makes FindKeys report truncation once more
	// than this many keys would be returned.
	MaxKeylist int
}

// FakeKey is the backing record for a FakeEngine key.
type FakeKey struct {
	Fingerprint   string
	PrimaryUserID string
	HasSecret     bool
	UltimateTrust bool
	SignedBy      map[string]bool // fingerprints of keys that have locally signed this one
}

// NewFakeEngine returns an empty engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{Keys: make(map[string]*FakeKey)}
}

// AddKey registers a key directly, bypassing ImportArmored, for test setup.
func (e *FakeEngine) AddKey(k *FakeKey) {
	if k.SignedBy == nil {
		k.SignedBy = make(map[string]bool)
	}
	e.Keys[k.Fingerprint] = k
}

func (e *FakeEngine) trusted(k *FakeKey) bool {
	if k.HasSecret || k.UltimateTrust {
		return true
	}
	for signerFP := range k.SignedBy {
		if signer, ok := e.Keys[signerFP]; ok && signer.HasSecret {
			return true
		}
	}
	return false
}

func (e *FakeEngine) toKey(k *FakeKey) Key {
	return Key{
		Fingerprint:   k.Fingerprint,
		PrimaryUserID: k.PrimaryUserID,
		Trusted:       e.trusted(k),
		HasSecret:     k.HasSecret,
	}
}

// FindKeys implements Engine.
func (e *FakeEngine) FindKeys(ids []string) ([]Key, error) {
	seen := make(map[string]bool)
	var out []Key
	for _, id := range ids {
		for fp, k := range e.Keys {
			if !strings.EqualFold(fp, id) && !strings.Contains(strings.ToLower(k.PrimaryUserID), strings.ToLower(id)) {
				continue
			}
			if seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, e.toKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	if e.MaxKeylist > 0 && len(out) > e.MaxKeylist {
		return nil, &verr.KeylistTruncated{}
	}
	return out, nil
}

// ImportArmored implements Engine. The fake's "armored" format is just
// "fingerprint\nuser-id\n", one key, produced by ExportArmored below.
func (e *FakeEngine) ImportArmored(armored []byte) ([]string, error) {
	parts := strings.SplitN(strings.TrimSpace(string(armored)), "\n", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed fake armored key")
	}
	fp, uid := parts[0], parts[1]
	if _, ok := e.Keys[fp]; !ok {
		e.AddKey(&FakeKey{Fingerprint: fp, PrimaryUserID: uid})
	}
	return []string{fp}, nil
}

// ExportArmored implements Engine.
func (e *FakeEngine) ExportArmored(key Key) ([]byte, error) {
	k, ok := e.Keys[key.Fingerprint]
	if !ok {
		return nil, fmt.Errorf("unknown key %q", key.Fingerprint)
	}
	return []byte(fmt.Sprintf("%s\n%s\n", k.Fingerprint, k.PrimaryUserID)), nil
}

// SignKeyLocally implements Engine.
func (e *FakeEngine) SignKeyLocally(key, signer Key) error {
	k, ok := e.Keys[key.Fingerprint]
	if !ok {
		return fmt.Errorf("unknown key %q", key.Fingerprint)
	}
	s, ok := e.Keys[signer.Fingerprint]
	if !ok || !s.HasSecret {
		return fmt.Errorf("signing key %q is not a locally-held secret key", signer.Fingerprint)
	}
	k.SignedBy[s.Fingerprint] = true
	return nil
}

// AddSigner implements Engine.
func (e *FakeEngine) AddSigner(key Key) error {
	k, ok := e.Keys[key.Fingerprint]
	if !ok || !k.HasSecret {
		return fmt.Errorf("key %q is not a locally-held secret key", key.Fingerprint)
	}
	e.Signer = key.Fingerprint
	return nil
}

// Encrypt implements Engine. The ciphertext format is
// "FAKEPGP\n<sorted,comma-joined recipient fingerprints>\n<plaintext>".
func (e *FakeEngine) Encrypt(keys []Key, plaintext io.Reader, ciphertext io.Writer) error {
	var fps []string
	for _, key := range keys {
		k, ok := e.Keys[key.Fingerprint]
		if !ok {
			return fmt.Errorf("unknown key %q", key.Fingerprint)
		}
		if !e.trusted(k) {
			return ErrUnusablePublicKey(fmt.Errorf("key %q (%s) is not trusted", k.Fingerprint, k.PrimaryUserID))
		}
		fps = append(fps, k.Fingerprint)
	}
	sort.Strings(fps)
	body, err := io.ReadAll(plaintext)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(ciphertext, "FAKEPGP\n%s\n%s", strings.Join(fps, ","), body)
	return err
}

// Decrypt implements Engine.
func (e *FakeEngine) Decrypt(ciphertext io.Reader, plaintext io.Writer) (Key, error) {
	raw, err := io.ReadAll(ciphertext)
	if err != nil {
		return Key{}, err
	}
	parts := bytes.SplitN(raw, []byte("\n"), 3)
	if len(parts) != 3 || string(parts[0]) != "FAKEPGP" {
		return Key{}, fmt.Errorf("not a recognized fake ciphertext")
	}
	recipients := strings.Split(string(parts[1]), ",")
	for _, fp := range recipients {
		k, ok := e.Keys[fp]
		if !ok || !k.HasSecret {
			continue
		}
		if _, err := plaintext.Write(parts[2]); err != nil {
			return Key{}, err
		}
		return e.toKey(k), nil
	}
	return Key{}, ErrNoSecretKey(fmt.Errorf("no locally-held secret key among recipients %v", recipients))
}

// SecretKeys implements Engine.
func (e *FakeEngine) SecretKeys() ([]Key, error) {
	var out []Key
	for _, k := range e.Keys {
		if k.HasSecret {
			out = append(out, e.toKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

var _ Engine = (*FakeEngine)(nil)
var _ Engine = (*OpenPGPEngine)(nil)
