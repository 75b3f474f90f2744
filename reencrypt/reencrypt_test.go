package reencrypt

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/keyring"
	"github.com/burakince/vault/recipients"
	"github.com/burakince/vault/resource"
	"github.com/burakince/vault/vaultstore"
	"github.com/burakince/vault/verr"
)

const k1 = "1111111111111111111111111111111111111111"
const k2 = "2222222222222222222222222222222222222222"

func newTestVault(t *testing.T) *vaultstore.Vault {
	t.Helper()
	dir := t.TempDir()
	leader, err := vaultstore.Init(filepath.Join(dir, "vault.yaml"), "secrets", "secrets/.recipients", "gpg-keys")
	require.NoError(t, err)
	return leader
}

func TestAddRecipientsTriggersReencryptionOfExistingResources(t *testing.T) {
	v := newTestVault(t)
	eng := engine.NewFakeEngine()
	eng.AddKey(&engine.FakeKey{Fingerprint: k1, PrimaryUserID: "alice", HasSecret: true, UltimateTrust: true})
	eng.AddKey(&engine.FakeKey{Fingerprint: k2, PrimaryUserID: "bob", HasSecret: true, UltimateTrust: true})

	mgr := resource.New(eng, v.SecretsPath())
	require.NoError(t, mgr.Add("alpha", bytes.NewReader([]byte("alpha content")), []engine.Key{{Fingerprint: k1}}, resource.Create))
	require.NoError(t, mgr.Add("beta", bytes.NewReader([]byte("beta content")), []engine.Key{{Fingerprint: k1}}, resource.Create))
	require.NoError(t, recipients.Write(v.RecipientsPath(), []string{k1}))

	var out bytes.Buffer
	require.NoError(t, New(eng).AddRecipients(v, []string{k2}, keyring.Verified, "", &out))

	fps, err := recipients.List(v.RecipientsPath())
	require.NoError(t, err)
	assert.Equal(t, []string{k1, k2}, fps)

	for _, name := range []string{"alpha", "beta"} {
		var gotFromK1, gotFromK2 bytes.Buffer
		require.NoError(t, mgr.Show(name, &gotFromK1))
		assert.NotEmpty(t, gotFromK1.String())

		single := engine.NewFakeEngine()
		single.AddKey(&engine.FakeKey{Fingerprint: k2, PrimaryUserID: "bob", HasSecret: true})
		soloMgr := resource.New(single, v.SecretsPath())
		require.NoError(t, soloMgr.Show(name, &gotFromK2))
		assert.Equal(t, gotFromK1.String(), gotFromK2.String())
	}
}

func TestRemoveRecipientsExcludesRemovedKeyFromNewCiphertext(t *testing.T) {
	v := newTestVault(t)
	eng := engine.NewFakeEngine()
	eng.AddKey(&engine.FakeKey{Fingerprint: k1, PrimaryUserID: "alice", HasSecret: true, UltimateTrust: true})
	eng.AddKey(&engine.FakeKey{Fingerprint: k2, PrimaryUserID: "bob", HasSecret: true, UltimateTrust: true})

	mgr := resource.New(eng, v.SecretsPath())
	require.NoError(t, mgr.Add("gamma", bytes.NewReader([]byte("gamma content")), []engine.Key{{Fingerprint: k1}, {Fingerprint: k2}}, resource.Create))
	require.NoError(t, recipients.Write(v.RecipientsPath(), []string{k1, k2}))

	var out bytes.Buffer
	require.NoError(t, New(eng).RemoveRecipients(v, []string{k2}, &out))

	fps, err := recipients.List(v.RecipientsPath())
	require.NoError(t, err)
	assert.Equal(t, []string{k1}, fps)

	bobOnly := engine.NewFakeEngine()
	bobOnly.AddKey(&engine.FakeKey{Fingerprint: k2, PrimaryUserID: "bob", HasSecret: true})
	bobMgr := resource.New(bobOnly, v.SecretsPath())
	err = bobMgr.Show("gamma", &bytes.Buffer{})
	require.Error(t, err)
	var noSecret *verr.NoSecretKey
	require.ErrorAs(t, err, &noSecret)
}

func TestRunReportsRaceDuringReencryptWhenFileVanishes(t *testing.T) {
	v := newTestVault(t)
	eng := engine.NewFakeEngine()
	eng.AddKey(&engine.FakeKey{Fingerprint: k1, PrimaryUserID: "alice", HasSecret: true, UltimateTrust: true})
	mgr := resource.New(eng, v.SecretsPath())
	require.NoError(t, mgr.Add("vanishing", bytes.NewReader([]byte("x")), []engine.Key{{Fingerprint: k1}}, resource.Create))
	require.NoError(t, mgr.Remove("vanishing"))

	p := New(eng)
	err := p.reencryptOne(mgr, "vanishing", []engine.Key{{Fingerprint: k1}})
	require.Error(t, err)
	var race *verr.RaceDuringReencrypt
	require.ErrorAs(t, err, &race)
}
