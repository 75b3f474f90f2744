package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burakince/vault/vaultstore"
	"github.com/burakince/vault/verr"
)

func testTree() *vaultstore.Vault {
	return &vaultstore.Vault{
		Index:      0,
		Kind:       vaultstore.KindLeader,
		SecretsDir: "secrets",
		Partitions: []*vaultstore.Vault{
			{Index: 1, Kind: vaultstore.KindPartition, Name: "a", SecretsDir: "secrets-a"},
			{Index: 2, Kind: vaultstore.KindPartition, Name: "x", SecretsDir: "secrets-b"},
			{Index: 3, Kind: vaultstore.KindPartition, Name: "x", SecretsDir: "secrets-c"},
		},
	}
}

func TestResolveByIndex(t *testing.T) {
	leader := testTree()
	got, err := Resolve("2", leader, false)
	require.NoError(t, err)
	assert.Equal(t, "secrets-b", got.SecretsDir)
}

func TestResolveLeaderIndexSelectionOnly(t *testing.T) {
	leader := testTree()
	got, err := Resolve("0", leader, false)
	require.NoError(t, err)
	assert.Same(t, leader, got)
}

func TestResolveRefusesLeaderIndexForRemoval(t *testing.T) {
	leader := testTree()
	_, err := Resolve("0", leader, true)
	require.Error(t, err)
	var refused *verr.RefusesToRemoveLeader
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, 0, refused.Index)
}

func TestResolveByPath(t *testing.T) {
	leader := testTree()
	got, err := Resolve("secrets-a", leader, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
}

func TestResolveByName(t *testing.T) {
	leader := testTree()
	got, err := Resolve("a", leader, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
}

func TestResolveAmbiguousName(t *testing.T) {
	leader := testTree()
	_, err := Resolve("x", leader, false)
	require.Error(t, err)
	var ambiguous *verr.AmbiguousSelector
	require.ErrorAs(t, err, &ambiguous)
	assert.ElementsMatch(t, []string{"secrets-b", "secrets-c"}, ambiguous.Matches)
}

func TestResolveNoMatch(t *testing.T) {
	leader := testTree()
	_, err := Resolve("nope", leader, false)
	require.Error(t, err)
	var noMatch *verr.NoMatchingPartition
	require.ErrorAs(t, err, &noMatch)
}

func TestResolveNoMatchByIndex(t *testing.T) {
	leader := testTree()
	_, err := Resolve("99", leader, false)
	require.Error(t, err)
	var noMatch *verr.NoMatchingPartition
	require.ErrorAs(t, err, &noMatch)
}
