package resource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/verr"
)

func newEngineWithKey(fp string) *engine.FakeEngine {
	e := engine.NewFakeEngine()
	e.AddKey(&engine.FakeKey{Fingerprint: fp, PrimaryUserID: "alice", HasSecret: true})
	return e
}

func TestAddThenShowRoundTrips(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	mgr := New(eng, t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}

	require.NoError(t, mgr.Add("foo", strings.NewReader("top secret"), keys, Create))

	var out strings.Builder
	require.NoError(t, mgr.Show("foo", &out))
	assert.Equal(t, "top secret", out.String())
}

func TestAddNoCreateRefusesOverwrite(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	mgr := New(eng, t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}

	require.NoError(t, mgr.Add("foo", strings.NewReader("v1"), keys, NoCreate))
	err := mgr.Add("foo", strings.NewReader("v2"), keys, NoCreate)
	require.Error(t, err)

	var out strings.Builder
	require.NoError(t, mgr.Show("foo", &out))
	assert.Equal(t, "v1", out.String(), "ciphertext must be untouched")
}

func TestShowMissingResourceIsNotFound(t *testing.T) {
	mgr := New(newEngineWithKey("AAAA"), t.TempDir())
	err := mgr.Show("missing", &strings.Builder{})
	require.Error(t, err)
	var notFound *verr.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestRemoveMissingResourceIsNotFound(t *testing.T) {
	mgr := New(newEngineWithKey("AAAA"), t.TempDir())
	err := mgr.Remove("missing")
	require.Error(t, err)
	var notFound *verr.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestListReturnsSortedLogicalNames(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	dir := t.TempDir()
	mgr := New(eng, dir)
	keys := []engine.Key{{Fingerprint: "AAAA"}}

	require.NoError(t, mgr.Add("zeta", strings.NewReader("z"), keys, Create))
	require.NoError(t, mgr.Add("alpha", strings.NewReader("a"), keys, Create))
	require.NoError(t, mgr.Add("sub/beta", strings.NewReader("b"), keys, Create))

	names, err := mgr.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "sub/beta", "zeta"}, names)
}

func TestEditAppliesEditorAndReencrypts(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	mgr := New(eng, t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}
	require.NoError(t, mgr.Add("foo", strings.NewReader("before"), keys, Create))

	appendEditor := func(path string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, append(content, []byte(" after")...), 0o600)
	}

	require.NoError(t, mgr.Edit("foo", keys, appendEditor, Create))

	var out strings.Builder
	require.NoError(t, mgr.Show("foo", &out))
	assert.Equal(t, "before after", out.String())
}

func TestEditNonZeroEditorLeavesCiphertextUntouched(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	mgr := New(eng, t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}
	require.NoError(t, mgr.Add("foo", strings.NewReader("before"), keys, Create))

	failingEditor := func(path string) error {
		return assert.AnError
	}
	var tempPath string
	wrapped := func(path string) error {
		tempPath = path
		return failingEditor(path)
	}

	err := mgr.Edit("foo", keys, wrapped, Create)
	require.Error(t, err)

	var out strings.Builder
	require.NoError(t, mgr.Show("foo", &out))
	assert.Equal(t, "before", out.String())

	_, statErr := os.Stat(tempPath)
	assert.True(t, os.IsNotExist(statErr), "temp plaintext must be removed on editor failure")
}

func TestEditNoCreateOnMissingResourceFails(t *testing.T) {
	mgr := New(newEngineWithKey("AAAA"), t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}

	err := mgr.Edit("missing", keys, func(string) error { return nil }, NoCreate)
	require.Error(t, err)
	var notFound *verr.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestEditCreateOnMissingResourceStartsEmpty(t *testing.T) {
	eng := newEngineWithKey("AAAA")
	mgr := New(eng, t.TempDir())
	keys := []engine.Key{{Fingerprint: "AAAA"}}

	var seen string
	editor := func(path string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		seen = string(content)
		return os.WriteFile(path, []byte("new content"), 0o600)
	}

	require.NoError(t, mgr.Edit("fresh", keys, editor, Create))
	assert.Equal(t, "", seen)

	var out strings.Builder
	require.NoError(t, mgr.Show("fresh", &out))
	assert.Equal(t, "new content", out.String())
}

func TestPathEscapeIsRejected(t *testing.T) {
	mgr := New(newEngineWithKey("AAAA"), t.TempDir())
	_, err := mgr.path("../escape")
	require.Error(t, err)
}

func TestPathJoinsSecretsDir(t *testing.T) {
	mgr := New(newEngineWithKey("AAAA"), "/vault/secrets")
	got, err := mgr.path("foo/bar")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/vault/secrets", "foo/bar"+Suffix), got)
}
