// Package resource is the Resource Manager (spec §4.6): add, show, edit,
// remove and list the secret files held under one vault partition's
// secrets_dir. File layout and the "walk, suffix-match, path-is-the-name"
// convention are grounded in secret/file.go's store; the decrypt/encrypt
// sequence generalizes password/store.go's Get/Put from a single fixed
// *openpgp.Entity to an engine.Engine and an arbitrary recipient set.
package resource

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/fsutil"
	"github.com/burakince/vault/verr"
)

// Suffix is the on-disk extension of every ciphertext file (spec §6).
const Suffix = ".gpg"

// CreateMode controls whether Add/Edit may bring a resource into existence,
// and whether Add may clobber one that already exists.
type CreateMode int

const (
	// Create permits creating a missing resource (Edit) or overwriting an
	// existing ciphertext (Add).
	Create CreateMode = iota
	// NoCreate requires the resource to already exist (Edit) or to not
	// already exist (Add), failing with *verr.NotFound / a file-exists
	// *verr.FileIO otherwise.
	NoCreate
)

// EditorLauncher edits the plaintext file at path in place, returning once
// the editor has exited. It is the external collaborator spec §6 calls out:
// Manager never knows how $EDITOR is resolved or spawned, only whether it
// succeeded.
type EditorLauncher func(path string) error

// ExecEditor returns an EditorLauncher that runs the given command line
// (editor binary plus any fixed arguments) with path appended, synchronously,
// with the standard streams inherited so an interactive editor works as
// expected.
func ExecEditor(command []string) EditorLauncher {
	return func(path string) error {
		if len(command) == 0 {
			return fmt.Errorf("no editor configured")
		}
		cmd := exec.Command(command[0], append(append([]string{}, command[1:]...), path)...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
}

var componentLog = log.With().Str("component", "resource").Logger()

// Manager operates over a single partition's secrets_dir.
type Manager struct {
	Engine     engine.Engine
	SecretsDir string
}

// New returns a Manager rooted at secretsDir, using eng for encrypt/decrypt.
func New(eng engine.Engine, secretsDir string) *Manager {
	return &Manager{Engine: eng, SecretsDir: secretsDir}
}

// path returns the absolute ciphertext path of the given logical name,
// refusing to walk out of SecretsDir the way secret/file.go's
// getEntryFilename does.
func (m *Manager) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("missing resource name")
	}
	full := filepath.Join(m.SecretsDir, name+Suffix)
	base := filepath.Clean(m.SecretsDir)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("resource name %q escapes the secrets directory", name)
	}
	return full, nil
}

// Add encrypts plaintext to recipients and writes it as name's ciphertext.
// With mode Create it overwrites any existing ciphertext; with mode NoCreate
// it refuses to overwrite one (spec §4.6).
func (m *Manager) Add(name string, plaintext io.Reader, recipients []engine.Key, mode CreateMode) error {
	ciphertextPath, err := m.path(name)
	if err != nil {
		return err
	}

	if mode == NoCreate {
		if _, err := os.Stat(ciphertextPath); err == nil {
			return &verr.FileIO{Mode: verr.Write, Path: ciphertextPath, Cause: os.ErrExist}
		} else if !os.IsNotExist(err) {
			return &verr.FileIO{Mode: verr.Read, Path: ciphertextPath, Cause: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(ciphertextPath), 0o700); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: filepath.Dir(ciphertextPath), Cause: err}
	}

	writeMode := fsutil.RefuseOverwrite
	if mode == Create {
		writeMode = fsutil.AllowOverwrite
	}
	if err := fsutil.WriteAtomic(ciphertextPath, writeMode, func(f *os.File) error {
		return m.Engine.Encrypt(recipients, plaintext, f)
	}); err != nil {
		return err
	}
	componentLog.Info().Str("name", name).Msg("added resource")
	return nil
}

// Show decrypts name's ciphertext to w without ever materializing plaintext
// on disk.
func (m *Manager) Show(name string, w io.Writer) error {
	ciphertextPath, err := m.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(ciphertextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &verr.NotFound{Name: name}
		}
		return &verr.FileIO{Mode: verr.Read, Path: ciphertextPath, Cause: err}
	}
	defer f.Close()

	if _, err := m.Engine.Decrypt(f, w); err != nil {
		return err
	}
	return nil
}

// Remove deletes name's ciphertext, reporting a missing resource distinctly
// from other failures.
func (m *Manager) Remove(name string) error {
	ciphertextPath, err := m.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(ciphertextPath); err != nil {
		if os.IsNotExist(err) {
			return &verr.NotFound{Name: name}
		}
		return &verr.FileIO{Mode: verr.Write, Path: ciphertextPath, Cause: err}
	}
	componentLog.Info().Str("name", name).Msg("removed resource")
	return nil
}

// List walks SecretsDir and returns every resource's logical name, sorted
// ascending, following secret/file.go's walk-and-suffix-match approach.
func (m *Manager) List() ([]string, error) {
	var names []string
	err := filepath.Walk(m.SecretsDir, func(path string, info os.FileInfo, inErr error) error {
		if inErr != nil {
			return inErr
		}
		if info.IsDir() || !strings.HasSuffix(path, Suffix) {
			return nil
		}
		rel, err := filepath.Rel(m.SecretsDir, strings.TrimSuffix(path, Suffix))
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &verr.FileIO{Mode: verr.Read, Path: m.SecretsDir, Cause: err}
	}
	sort.Strings(names)
	return names, nil
}

// Edit decrypts name's existing ciphertext (if any) into a private temporary
// file, synchronously spawns launch on it, and on a clean editor exit
// re-encrypts the result back over the original ciphertext. A non-zero
// editor exit, or any failure before it, leaves the original ciphertext
// byte-for-byte untouched; the temporary file and its directory are removed
// on every exit path.
//
// With mode NoCreate, a missing resource fails with *verr.NotFound instead of
// being created. With mode Create, a missing resource starts the editor on
// an empty file.
func (m *Manager) Edit(name string, recipients []engine.Key, launch EditorLauncher, mode CreateMode) error {
	ciphertextPath, err := m.path(name)
	if err != nil {
		return err
	}

	existing, err := os.Open(ciphertextPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return &verr.FileIO{Mode: verr.Read, Path: ciphertextPath, Cause: err}
		}
		if mode == NoCreate {
			return &verr.NotFound{Name: name}
		}
		existing = nil
	}

	tmp, cleanup, err := fsutil.PrivateTempFile("vault-edit-*")
	if err != nil {
		if existing != nil {
			existing.Close()
		}
		return err
	}
	defer cleanup()
	tmpPath := tmp.Name()

	if existing != nil {
		var plaintext bytes.Buffer
		if _, err := m.Engine.Decrypt(existing, &plaintext); err != nil {
			existing.Close()
			return err
		}
		existing.Close()
		if _, err := tmp.Write(plaintext.Bytes()); err != nil {
			return &verr.FileIO{Mode: verr.Write, Path: tmpPath, Cause: err}
		}
	}
	if err := tmp.Close(); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: tmpPath, Cause: err}
	}

	if err := launch(tmpPath); err != nil {
		return errors.Wrapf(err, "editor exited with an error, %q is unchanged", name)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return &verr.FileIO{Mode: verr.Read, Path: tmpPath, Cause: err}
	}

	if err := os.MkdirAll(filepath.Dir(ciphertextPath), 0o700); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: filepath.Dir(ciphertextPath), Cause: err}
	}
	if err := fsutil.WriteAtomic(ciphertextPath, fsutil.AllowOverwrite, func(f *os.File) error {
		return m.Engine.Encrypt(recipients, bytes.NewReader(edited), f)
	}); err != nil {
		return err
	}
	componentLog.Info().Str("name", name).Msg("edited resource")
	return nil
}
