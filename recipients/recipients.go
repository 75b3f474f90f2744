// Package recipients implements the Recipients File component (spec §4.2
// partially, §6): parsing and emitting the sorted, deduplicated,
// fingerprint-only recipients list, and the gpg_keys_dir layout ("one file
// per exported recipient, filename is the uppercase fingerprint with no
// extension, contents are the armored public-key block").
package recipients

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/fsutil"
	"github.com/burakince/vault/verr"
)

var fingerprintRe = regexp.MustCompile(`^[0-9A-F]{40}$|^[0-9A-F]{64}$`)

// IsValidFingerprint reports whether s is an uppercase-hex fingerprint of
// the lengths spec §6 allows (40 for RSA/DSA, 40 or 64 for newer
// algorithms).
func IsValidFingerprint(s string) bool { return fingerprintRe.MatchString(s) }

var componentLog = log.With().Str("component", "recipients").Logger()

// List reads and validates the fingerprints at path.
func List(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !IsValidFingerprint(line) {
			return nil, &verr.Serialization{Direction: verr.Decode, Path: path, Cause: fmt.Errorf("line %q is not a valid fingerprint", line)}
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
	}
	return Normalize(out), nil
}

// Normalize returns fps sorted and deduplicated, the on-disk normal form
// (spec §8: "for any input recipient list R, the on-disk form equals
// dedup(sort(R))").
func Normalize(fps []string) []string {
	set := make(map[string]bool, len(fps))
	out := make([]string, 0, len(fps))
	for _, fp := range fps {
		if set[fp] {
			continue
		}
		set[fp] = true
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Write persists fps (normalized) at path via the atomic-rename discipline.
func Write(path string, fps []string) error {
	normalized := Normalize(fps)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: filepath.Dir(path), Cause: err}
	}
	err := fsutil.WriteAtomic(path, fsutil.AllowOverwrite, func(f *os.File) error {
		w := bufio.NewWriter(f)
		for _, fp := range normalized {
			if _, err := fmt.Fprintln(w, fp); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	if err != nil {
		return err
	}
	componentLog.Debug().Str("path", path).Int("count", len(normalized)).Msg("wrote recipients file")
	return nil
}

// KeyFilePath returns the path of fingerprint's exported key under
// gpgKeysDir (spec §6 gpg_keys_dir layout).
func KeyFilePath(gpgKeysDir, fingerprint string) string {
	return filepath.Join(gpgKeysDir, fingerprint)
}

// ExportToKeysDir writes key's armored public material to gpgKeysDir if it
// is not already present there, returning true if it wrote a new file.
func ExportToKeysDir(eng engine.Engine, gpgKeysDir string, key engine.Key) (bool, error) {
	path := KeyFilePath(gpgKeysDir, key.Fingerprint)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
	}

	armored, err := eng.ExportArmored(key)
	if err != nil {
		return false, fmt.Errorf("could not export key %q: %w", key.Fingerprint, err)
	}
	if err := os.MkdirAll(gpgKeysDir, 0o700); err != nil {
		return false, &verr.FileIO{Mode: verr.Write, Path: gpgKeysDir, Cause: err}
	}
	if err := fsutil.WriteAtomic(path, fsutil.AllowOverwrite, func(f *os.File) error {
		_, err := f.Write(armored)
		return err
	}); err != nil {
		return false, err
	}
	componentLog.Info().Str("fingerprint", key.Fingerprint).Str("path", path).Msg("exported recipient key")
	return true, nil
}

// Init publishes key's public material into gpgKeysDir (spec.md's
// "RecipientsInit" dispatch variant, §1/§6). Nothing in this package reads
// keys back from gpgKeysDir; adding a recipient resolves keys through the
// engine's own keyring. It is a no-op,
// returning (false, nil), when gpgKeysDir is empty (vault has no
// gpg_keys_dir configured).
func Init(eng engine.Engine, gpgKeysDir string, key engine.Key) (bool, error) {
	if gpgKeysDir == "" {
		return false, nil
	}
	return ExportToKeysDir(eng, gpgKeysDir, key)
}

// ReconcileKeysDir ensures every fingerprint in fps has a corresponding
// exported key file under gpgKeysDir, importing nothing — it only exports
// keys the engine already has loaded. Fingerprints the engine cannot find
// are reported but do not abort the reconciliation of the others.
func ReconcileKeysDir(eng engine.Engine, gpgKeysDir string, fps []string) (missing []string, err error) {
	for _, fp := range fps {
		keys, err := eng.FindKeys([]string{fp})
		if err != nil {
			return missing, err
		}
		if len(keys) == 0 {
			missing = append(missing, fp)
			continue
		}
		if _, err := ExportToKeysDir(eng, gpgKeysDir, keys[0]); err != nil {
			return missing, err
		}
	}
	return missing, nil
}
