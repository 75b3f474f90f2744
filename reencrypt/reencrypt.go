// Package reencrypt is the Re-encryption Pipeline (spec §4.7): whenever a
// partition's recipient set changes, every ciphertext under its secrets_dir
// must end up encrypted to exactly that set, with no ciphertext left
// encrypted to a stale set. Plaintext is written only to owner-only
// temporary files, each removed once its resource is re-encrypted.
package reencrypt

import (
	"bytes"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/fsutil"
	"github.com/burakince/vault/keyring"
	"github.com/burakince/vault/recipients"
	"github.com/burakince/vault/resource"
	"github.com/burakince/vault/vaultstore"
	"github.com/burakince/vault/verr"
)

var componentLog = log.With().Str("component", "reencrypt").Logger()

// Pipeline wires the Keyring Policy to a crypto engine and drives the
// recipients-file rewrite and whole-directory re-encryption that must follow
// any recipient set change.
type Pipeline struct {
	Engine engine.Engine
	Policy *keyring.Policy
}

// New returns a Pipeline built on eng.
func New(eng engine.Engine) *Pipeline {
	return &Pipeline{Engine: eng, Policy: keyring.New(eng)}
}

// AddRecipients resolves ids under mode, merges them into v's existing
// recipient set, and re-encrypts every resource under v to the resulting
// set. out receives the human-readable transcript (signed-key notices, one
// line per re-encrypted resource).
func (p *Pipeline) AddRecipients(v *vaultstore.Vault, ids []string, mode keyring.Mode, signingKeyID string, out io.Writer) error {
	current, err := recipients.List(v.RecipientsPath())
	if err != nil {
		return err
	}

	newKeys, err := p.Policy.EffectiveRecipients(ids, mode, v.HasGPGKeysDir(), signingKeyID, out)
	if err != nil {
		return err
	}
	merged := append(append([]string{}, current...), fingerprintsOf(newKeys)...)
	return p.apply(v, merged, out)
}

// RemoveRecipients removes ids from v's existing recipient set and
// re-encrypts every resource under v to the reduced set.
func (p *Pipeline) RemoveRecipients(v *vaultstore.Vault, ids []string, out io.Writer) error {
	current, err := recipients.List(v.RecipientsPath())
	if err != nil {
		return err
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := make([]string, 0, len(current))
	for _, fp := range current {
		if !remove[fp] {
			kept = append(kept, fp)
		}
	}
	return p.apply(v, kept, out)
}

// fingerprintsOf extracts the fingerprint of each key, in the order given.
func fingerprintsOf(keys []engine.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Fingerprint
	}
	return out
}

// apply normalizes fps, resolves it to keys, reconciles gpg_keys_dir,
// rewrites the recipients file, then re-encrypts every resource under v to
// the resolved key set.
func (p *Pipeline) apply(v *vaultstore.Vault, fps []string, out io.Writer) error {
	normalized := recipients.Normalize(fps)

	keys, err := p.Policy.ResolveKeyIDs(normalized)
	if err != nil {
		return errors.Wrap(err, "could not resolve the updated recipient set to keys")
	}

	if v.HasGPGKeysDir() {
		missing, err := recipients.ReconcileKeysDir(p.Engine, v.GPGKeysPath(), normalized)
		if err != nil {
			return errors.Wrap(err, "could not reconcile gpg_keys_dir with the updated recipient set")
		}
		for _, fp := range missing {
			componentLog.Warn().Str("fingerprint", fp).Msg("recipient has no locally-known key; gpg_keys_dir entry left unchanged")
		}
	}

	if err := recipients.Write(v.RecipientsPath(), normalized); err != nil {
		return err
	}

	return p.Run(v.SecretsPath(), keys, out)
}

// Run re-encrypts every resource under secretsDir to keys, in sorted path
// order, stopping at the first failure. Each resource is decrypted to a
// private temporary file, re-encrypted from that file, and the ciphertext is
// replaced atomically; the temporary file is always removed before Run moves
// on to the next resource.
func (p *Pipeline) Run(secretsDir string, keys []engine.Key, out io.Writer) error {
	mgr := resource.New(p.Engine, secretsDir)
	names, err := mgr.List()
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := p.reencryptOne(mgr, name, keys); err != nil {
			return errors.Wrapf(err, "re-encrypting %q", name)
		}
		if out != nil {
			io.WriteString(out, "Re-encrypted "+name+"\n")
		}
		componentLog.Info().Str("name", name).Msg("re-encrypted resource")
	}
	return nil
}

func (p *Pipeline) reencryptOne(mgr *resource.Manager, name string, keys []engine.Key) error {
	var plaintext bytes.Buffer
	if err := mgr.Show(name, &plaintext); err != nil {
		if _, ok := err.(*verr.NotFound); ok {
			return &verr.RaceDuringReencrypt{Path: name}
		}
		return err
	}

	tmp, cleanup, err := fsutil.PrivateTempFile("vault-reencrypt-*")
	if err != nil {
		return err
	}
	defer cleanup()
	if _, err := tmp.Write(plaintext.Bytes()); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := mgr.Add(name, tmp, keys, resource.Create); err != nil {
		if os.IsNotExist(errCause(err)) {
			return &verr.RaceDuringReencrypt{Path: name}
		}
		return err
	}
	return nil
}

// errCause unwraps err to whatever os.IsNotExist can recognize, matching
// the "no retry, just classify" rule of §4.7.
func errCause(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
