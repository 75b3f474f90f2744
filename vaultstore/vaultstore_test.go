package vaultstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burakince/vault/fsutil"
	"github.com/burakince/vault/verr"
)

func TestInitThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")

	leader, err := Init(path, "secrets", "secrets/.recipients", "gpg-keys")
	require.NoError(t, err)
	assert.Equal(t, 0, leader.Index)
	assert.DirExists(t, filepath.Join(dir, "secrets"))
	assert.DirExists(t, filepath.Join(dir, "gpg-keys"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, leader.SecretsDir, loaded.SecretsDir)
	assert.Equal(t, leader.RecipientsFile, loaded.RecipientsFile)
	assert.Equal(t, leader.GPGKeysDir, loaded.GPGKeysDir)
	assert.Empty(t, loaded.Partitions)
}

func TestInitTwiceFailsAndLeavesFirstUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")

	_, err := Init(path, "secrets", "secrets/.recipients", "")
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = Init(path, "other-secrets", "other/.recipients", "")
	require.Error(t, err)
	var exists *verr.ConfigurationFileExists
	require.ErrorAs(t, err, &exists)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAddPartitionAllocatesNextIndexAndDefaultName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	leader, err := Init(path, "secrets", "secrets/.recipients", "")
	require.NoError(t, err)

	p1, err := leader.AddPartition("secrets-a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Index)
	assert.Equal(t, "secrets-a", p1.Name)

	p2, err := leader.AddPartition("secrets-b", "custom")
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Index)
	assert.Equal(t, "custom", p2.Name)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Partitions, 2)
	assert.Equal(t, 1, reloaded.Partitions[0].Index)
	assert.Equal(t, 2, reloaded.Partitions[1].Index)
}

func TestRemovePartitionPersistsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	leader, err := Init(path, "secrets", "secrets/.recipients", "")
	require.NoError(t, err)

	p, err := leader.AddPartition("secrets-a", "a")
	require.NoError(t, err)

	require.NoError(t, leader.RemovePartition(p.Index))
	assert.Empty(t, leader.Partitions)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Partitions)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	doc := "- index: 0\n  kind: leader\n  secrets_dir: secrets\n  recipients_file: secrets/.recipients\n  bogus_field: true\n"
	require.NoError(t, fsutil.WriteAtomic(path, fsutil.RefuseOverwrite, func(f *os.File) error {
		_, err := f.WriteString(doc)
		return err
	}))

	_, err := Load(path)
	require.Error(t, err)
	var ser *verr.Serialization
	require.ErrorAs(t, err, &ser)
}

func TestAbsolutePathResolvesAgainstVaultDir(t *testing.T) {
	v := &Vault{VaultPath: "/home/alice/vault/vault.yaml"}
	assert.Equal(t, "/home/alice/vault/secrets", v.AbsolutePath("secrets"))
}
