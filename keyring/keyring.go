// Package keyring is the Keyring Policy (spec §4.2, §4.5): it decides which
// keys are trusted, enforces the verified/unverified add-recipient rules,
// and selects the signing key used to locally sign an unverified recipient.
package keyring

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/verr"
)

// Policy wraps an engine.Engine with the trust/signing rules of spec §4.2
// and §4.5.
type Policy struct {
	Engine engine.Engine
}

// New returns a Policy over eng.
func New(eng engine.Engine) *Policy {
	return &Policy{Engine: eng}
}

var componentLog = log.With().Str("component", "keyring").Logger()

// ResolveKeyIDs resolves each id to exactly one key, failing closed with
// *verr.AmbiguousKeyID when an id matches more than one local key (spec §9
// Open Question) rather than picking arbitrarily, and with a plain error
// when an id matches none.
func (p *Policy) ResolveKeyIDs(ids []string) ([]engine.Key, error) {
	out := make([]engine.Key, 0, len(ids))
	for _, id := range ids {
		keys, err := p.Engine.FindKeys([]string{id})
		if err != nil {
			return nil, err
		}
		switch len(keys) {
		case 0:
			return nil, fmt.Errorf("no key found matching %q", id)
		case 1:
			out = append(out, keys[0])
		default:
			candidates := make([]string, len(keys))
			for i, k := range keys {
				candidates[i] = fmt.Sprintf("%s (%s)", k.Fingerprint, k.PrimaryUserID)
			}
			return nil, &verr.AmbiguousKeyID{ID: id, Candidates: candidates}
		}
	}
	return out, nil
}

// SelectSigningKey implements spec §4.5: an explicit id must resolve to a
// locally-held secret key; absent that, the sole local secret key is used;
// absent that, *verr.AmbiguousSigningKey lists the candidates.
func (p *Policy) SelectSigningKey(explicitID string) (engine.Key, error) {
	if explicitID != "" {
		keys, err := p.Engine.FindKeys([]string{explicitID})
		if err != nil {
			return engine.Key{}, err
		}
		var secretMatches []engine.Key
		for _, k := range keys {
			if k.HasSecret {
				secretMatches = append(secretMatches, k)
			}
		}
		if len(secretMatches) == 0 {
			return engine.Key{}, fmt.Errorf("signing key id %q does not resolve to a locally-held secret key", explicitID)
		}
		if len(secretMatches) > 1 {
			candidates := make([]string, len(secretMatches))
			for i, k := range secretMatches {
				candidates[i] = k.Fingerprint
			}
			return engine.Key{}, &verr.AmbiguousSigningKey{Candidates: candidates}
		}
		return secretMatches[0], nil
	}

	secretKeys, err := p.Engine.SecretKeys()
	if err != nil {
		return engine.Key{}, err
	}
	if len(secretKeys) == 1 {
		return secretKeys[0], nil
	}
	candidates := make([]string, len(secretKeys))
	for i, k := range secretKeys {
		candidates[i] = k.Fingerprint
	}
	return engine.Key{}, &verr.AmbiguousSigningKey{Candidates: candidates}
}

// Mode selects between spec §4.2's verified and unverified add-recipient
// behaviors.
type Mode int

const (
	// Verified rejects any key not already trusted.
	Verified Mode = iota
	// Unverified locally signs every resolved-but-untrusted key with the
	// selected signing key before proceeding; requires gpg_keys_dir.
	Unverified
)

// EffectiveRecipients resolves ids to keys and, depending on mode, either
// rejects untrusted keys outright (Verified) or locally signs them with the
// selected signing key so they become trusted (Unverified). hasGPGKeysDir
// must reflect whether the target vault has gpg_keys_dir configured.
func (p *Policy) EffectiveRecipients(ids []string, mode Mode, hasGPGKeysDir bool, signingKeyID string, out io.Writer) ([]engine.Key, error) {
	keys, err := p.ResolveKeyIDs(ids)
	if err != nil {
		return nil, err
	}

	if mode == Verified {
		for _, k := range keys {
			if !k.Trusted {
				return nil, &verr.UnusablePublicKey{Cause: fmt.Errorf("key %s (%s) is not trusted; use unverified mode or sign it manually", k.Fingerprint, k.PrimaryUserID)}
			}
		}
		return keys, nil
	}

	if !hasGPGKeysDir {
		return nil, fmt.Errorf("adding unverified recipients requires a vault with gpg_keys_dir configured")
	}
	signer, err := p.SelectSigningKey(signingKeyID)
	if err != nil {
		return nil, errors.Wrap(err, "could not find a suitable signing key for re-exporting recipient keys")
	}
	if err := p.Engine.AddSigner(signer); err != nil {
		return nil, err
	}

	effective := make([]engine.Key, len(keys))
	for i, k := range keys {
		if k.Trusted {
			effective[i] = k
			continue
		}
		if err := p.Engine.SignKeyLocally(k, signer); err != nil {
			return nil, errors.Wrapf(err, "could not sign key %s with signing key %s", k.Fingerprint, signer.Fingerprint)
		}
		fmt.Fprintf(out, "Signed recipient key %s (%s) with signing key %s\n", k.Fingerprint, k.PrimaryUserID, signer.Fingerprint)
		componentLog.Info().Str("fingerprint", k.Fingerprint).Str("signer", signer.Fingerprint).Msg("locally signed recipient key")

		refreshed, err := p.Engine.FindKeys([]string{k.Fingerprint})
		if err != nil || len(refreshed) != 1 {
			return nil, fmt.Errorf("could not reload key %s after signing it", k.Fingerprint)
		}
		effective[i] = refreshed[0]
	}
	return effective, nil
}
