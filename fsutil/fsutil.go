// Package fsutil provides the atomic-write discipline shared by every part
// of the vault that persists a file: write to a sibling temporary file, then
// rename it into place, so a crash never leaves a torn document.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/burakince/vault/verr"
)

// WriteMode controls whether WriteAtomic may clobber an existing file.
type WriteMode int

const (
	// RefuseOverwrite fails if the destination already exists.
	RefuseOverwrite WriteMode = iota
	// AllowOverwrite replaces the destination if it already exists.
	AllowOverwrite
)

// WriteAtomic calls write with a temporary file created alongside path, then
// renames the temporary file onto path. If mode is RefuseOverwrite and path
// already exists, it returns *verr.ConfigurationFileExists without calling
// write. The temporary file is always removed on any failure path.
func WriteAtomic(path string, mode WriteMode, write func(f *os.File) error) (retErr error) {
	dir := filepath.Dir(path)
	if mode == RefuseOverwrite {
		if _, err := os.Stat(path); err == nil {
			return &verr.ConfigurationFileExists{Path: path}
		} else if !os.IsNotExist(err) {
			return &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
		}
	}

	tmp, err := os.CreateTemp(dir, ".vault-tmp-")
	if err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: dir, Cause: err}
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: tmpName, Cause: err}
	}
	if err := write(tmp); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: path, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: tmpName, Cause: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &verr.FileIO{Mode: verr.Write, Path: path, Cause: err}
	}
	return nil
}

// PrivateTempFile creates a temporary file with owner-only permissions in
// an owner-only temporary directory, for plaintext that must never be
// world- or group-readable (Resource Manager edit/re-encryption). The
// caller is responsible for removing both the file and its directory on
// every exit path.
func PrivateTempFile(pattern string) (*os.File, func(), error) {
	dir, err := os.MkdirTemp("", "vault-secret-")
	if err != nil {
		return nil, nil, &verr.FileIO{Mode: verr.Write, Path: os.TempDir(), Cause: err}
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return nil, nil, &verr.FileIO{Mode: verr.Write, Path: dir, Cause: err}
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, &verr.FileIO{Mode: verr.Write, Path: dir, Cause: err}
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return nil, nil, &verr.FileIO{Mode: verr.Write, Path: f.Name(), Cause: err}
	}
	cleanup := func() {
		f.Close()
		os.RemoveAll(dir)
	}
	return f, cleanup, nil
}
