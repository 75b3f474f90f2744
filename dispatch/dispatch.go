// Package dispatch is the External Dispatch Interface (spec §6): a tagged
// command value plus an executor, consumed by the CLI front-end (or any
// other driver). It is the only package that wires the Vault Store,
// Partition Resolver, Recipients File, Keyring Policy, Resource Manager and
// Re-encryption Pipeline together; every other package is usable on its own.
package dispatch

import (
	"fmt"
	"io"
	"os"

	"github.com/burakince/vault/engine"
	"github.com/burakince/vault/keyring"
	"github.com/burakince/vault/partition"
	"github.com/burakince/vault/recipients"
	"github.com/burakince/vault/reencrypt"
	"github.com/burakince/vault/resource"
	"github.com/burakince/vault/vaultstore"
	"github.com/burakince/vault/verr"
)

// Command is a tagged union; each concrete type below is one dispatch
// variant named in spec §6.
type Command interface{ isCommand() }

// Init creates a brand-new vault configuration document.
type Init struct {
	VaultPath      string
	SecretsDir     string
	RecipientsFile string
	GPGKeysDir     string
}

// List enumerates the leader and every partition.
type List struct {
	VaultPath string
}

// PartitionsAdd adds a new partition to the vault rooted at VaultPath.
type PartitionsAdd struct {
	VaultPath string
	Path      string
	Name      string
}

// PartitionsRemove removes the partition Selector identifies.
type PartitionsRemove struct {
	VaultPath string
	Selector  string
}

// RecipientsAdd adds IDs to Selector's recipient set and triggers
// re-encryption.
type RecipientsAdd struct {
	VaultPath    string
	Selector     string
	IDs          []string
	Unverified   bool
	SigningKeyID string
}

// RecipientsRemove removes IDs from Selector's recipient set and triggers
// re-encryption.
type RecipientsRemove struct {
	VaultPath string
	Selector  string
	IDs       []string
}

// RecipientsInit publishes a local key as an exportable recipient, and
// optionally immediately adds it to Selector's recipient set.
type RecipientsInit struct {
	VaultPath    string
	Selector     string
	KeyID        string
	Add          bool
	SigningKeyID string
}

// RecipientsList lists Selector's current recipient fingerprints.
type RecipientsList struct {
	VaultPath string
	Selector  string
}

// ResourceAdd encrypts Source (a file path, or "" / "stdin" for standard
// input) as Destination under Selector.
type ResourceAdd struct {
	VaultPath   string
	Selector    string
	Source      string
	Destination string
	Mode        resource.CreateMode
}

// ResourceRemove deletes Name's ciphertext under Selector.
type ResourceRemove struct {
	VaultPath string
	Selector  string
	Name      string
}

// ResourceShow decrypts Name under Selector to the executor's out writer.
type ResourceShow struct {
	VaultPath string
	Selector  string
	Name      string
}

// ResourceEdit decrypts, edits and re-encrypts Name under Selector. Launch
// is the external editor-launch collaborator (spec §1); resource.ExecEditor
// provides a default.
type ResourceEdit struct {
	VaultPath string
	Selector  string
	Name      string
	Mode      resource.CreateMode
	Launch    resource.EditorLauncher
}

// ResourceList lists every resource under Selector.
type ResourceList struct {
	VaultPath string
	Selector  string
}

func (Init) isCommand()             {}
func (List) isCommand()             {}
func (PartitionsAdd) isCommand()    {}
func (PartitionsRemove) isCommand() {}
func (RecipientsAdd) isCommand()    {}
func (RecipientsRemove) isCommand() {}
func (RecipientsInit) isCommand()   {}
func (RecipientsList) isCommand()   {}
func (ResourceAdd) isCommand()      {}
func (ResourceRemove) isCommand()   {}
func (ResourceShow) isCommand()     {}
func (ResourceEdit) isCommand()     {}
func (ResourceList) isCommand()     {}

// resolveSelector treats the empty selector as "the leader itself" (refused
// with *verr.RefusesToRemoveLeader when forRemoval) and otherwise defers to
// partition.Resolve.
func resolveSelector(selector string, leader *vaultstore.Vault, forRemoval bool) (*vaultstore.Vault, error) {
	if selector == "" {
		if forRemoval {
			return nil, &verr.RefusesToRemoveLeader{Index: leader.Index}
		}
		return leader, nil
	}
	return partition.Resolve(selector, leader, forRemoval)
}

// Execute runs cmd against eng, writing a human-readable transcript to out.
// It returns a *verr-classified error on failure; callers typically render
// it with verr.PrintCauses.
func Execute(eng engine.Engine, cmd Command, out io.Writer) error {
	switch c := cmd.(type) {
	case Init:
		_, err := vaultstore.Init(c.VaultPath, c.SecretsDir, c.RecipientsFile, c.GPGKeysDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Initialized vault at %s\n", c.VaultPath)
		return nil

	case List:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\tleader\t%s\n", leader.Index, leader.SecretsDir)
		for _, p := range leader.Partitions {
			fmt.Fprintf(out, "%d\tpartition\t%s\t%s\n", p.Index, p.Name, p.SecretsDir)
		}
		return nil

	case PartitionsAdd:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		p, err := leader.AddPartition(c.Path, c.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Added partition %d (%s) at %s\n", p.Index, p.Name, p.SecretsDir)
		return nil

	case PartitionsRemove:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		p, err := resolveSelector(c.Selector, leader, true)
		if err != nil {
			return err
		}
		if err := leader.RemovePartition(p.Index); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed partition %d\n", p.Index)
		return nil

	case RecipientsAdd:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		mode := keyring.Verified
		if c.Unverified {
			mode = keyring.Unverified
		}
		if err := reencrypt.New(eng).AddRecipients(target, c.IDs, mode, c.SigningKeyID, out); err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated recipients for %s\n", target.SecretsDir)
		return nil

	case RecipientsRemove:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		if err := reencrypt.New(eng).RemoveRecipients(target, c.IDs, out); err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated recipients for %s\n", target.SecretsDir)
		return nil

	case RecipientsInit:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		policy := keyring.New(eng)
		key, err := policy.SelectSigningKey(c.KeyID)
		if err != nil {
			return err
		}
		wrote, err := recipients.Init(eng, target.GPGKeysPath(), key)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(out, "Exported %s to %s\n", key.Fingerprint, target.GPGKeysPath())
		} else {
			fmt.Fprintf(out, "%s is already exported to %s\n", key.Fingerprint, target.GPGKeysPath())
		}
		if c.Add {
			if err := reencrypt.New(eng).AddRecipients(target, []string{key.Fingerprint}, keyring.Unverified, c.SigningKeyID, out); err != nil {
				return err
			}
			fmt.Fprintf(out, "Added %s as a recipient of %s\n", key.Fingerprint, target.SecretsDir)
		}
		return nil

	case RecipientsList:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		fps, err := recipients.List(target.RecipientsPath())
		if err != nil {
			return err
		}
		for _, fp := range fps {
			fmt.Fprintln(out, fp)
		}
		return nil

	case ResourceAdd:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		keys, err := effectiveRecipients(eng, target)
		if err != nil {
			return err
		}
		plaintext, closeFn, err := sourceReader(c.Source)
		if err != nil {
			return err
		}
		defer closeFn()
		mgr := resource.New(eng, target.SecretsPath())
		if err := mgr.Add(c.Destination, plaintext, keys, c.Mode); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %s\n", c.Destination)
		return nil

	case ResourceRemove:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		mgr := resource.New(eng, target.SecretsPath())
		if err := mgr.Remove(c.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %s\n", c.Name)
		return nil

	case ResourceShow:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		mgr := resource.New(eng, target.SecretsPath())
		return mgr.Show(c.Name, out)

	case ResourceEdit:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		keys, err := effectiveRecipients(eng, target)
		if err != nil {
			return err
		}
		launch := c.Launch
		if launch == nil {
			launch = resource.ExecEditor(defaultEditorCommand())
		}
		mgr := resource.New(eng, target.SecretsPath())
		if err := mgr.Edit(c.Name, keys, launch, c.Mode); err != nil {
			return err
		}
		fmt.Fprintf(out, "Edited %s\n", c.Name)
		return nil

	case ResourceList:
		leader, err := vaultstore.Load(c.VaultPath)
		if err != nil {
			return err
		}
		target, err := resolveSelector(c.Selector, leader, false)
		if err != nil {
			return err
		}
		mgr := resource.New(eng, target.SecretsPath())
		names, err := mgr.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil

	default:
		return fmt.Errorf("unrecognized command %T", cmd)
	}
}

// effectiveRecipients resolves target's current recipient fingerprints to
// keys, the set every resource write must be encrypted to (§4.2, §4.6).
func effectiveRecipients(eng engine.Engine, target *vaultstore.Vault) ([]engine.Key, error) {
	fps, err := recipients.List(target.RecipientsPath())
	if err != nil {
		return nil, err
	}
	return keyring.New(eng).ResolveKeyIDs(fps)
}

// sourceReader opens source for reading plaintext; "" and "stdin" both mean
// standard input.
func sourceReader(source string) (io.Reader, func(), error) {
	if source == "" || source == "stdin" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// defaultEditorCommand resolves the editor invocation from $EDITOR, falling
// back to vi, mirroring the convention every pass/vim-wiki-style CLI follows.
func defaultEditorCommand() []string {
	if e := os.Getenv("EDITOR"); e != "" {
		return []string{e}
	}
	return []string{"vi"}
}
