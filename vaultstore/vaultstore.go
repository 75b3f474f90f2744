// Package vaultstore is the Vault Store (spec §4.3): it loads and persists
// the vault configuration document, computes absolute paths from
// vault-relative ones, and enumerates partitions. It also owns the data
// model of spec §3 (Vault tree: one leader plus zero or more partitions)
// and the partition add/remove bookkeeping of spec §4.3/§4.4, whose exact
// index-allocation rule is grounded in
// original_source/lib/vault/src/partitions.rs.
package vaultstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/burakince/vault/fsutil"
	"github.com/burakince/vault/verr"
)

// Kind distinguishes the leading vault from its partitions.
type Kind string

const (
	KindLeader    Kind = "leader"
	KindPartition Kind = "partition"
)

// record is the on-disk, serialized shape of one vault node (spec §6:
// "stable snake-case keys"). Unknown fields are rejected by Load via
// yaml.Decoder.KnownFields(true).
type record struct {
	Index          int     `yaml:"index"`
	Kind           Kind    `yaml:"kind"`
	Name           *string `yaml:"name,omitempty"`
	SecretsDir     string  `yaml:"secrets_dir"`
	RecipientsFile string  `yaml:"recipients_file"`
	GPGKeysDir     *string `yaml:"gpg_keys_dir,omitempty"`
}

// Vault is one node of the tree described in spec §3: the leader, or one of
// its partitions.
type Vault struct {
	Index          int
	Kind           Kind
	Name           string // empty if unset
	SecretsDir     string // vault-relative
	RecipientsFile string // vault-relative
	GPGKeysDir     string // vault-relative; empty if not configured

	// Partitions is only meaningful on the leader.
	Partitions []*Vault

	// VaultPath is the absolute path of the on-disk configuration
	// document. It is attached after Load and is never serialized.
	VaultPath string
}

func (v *Vault) hasGPGKeysDir() bool { return v.GPGKeysDir != "" }

// HasGPGKeysDir reports whether this vault has a public-key store
// configured (spec §3: "presence gates 'add unverified recipient'
// semantics").
func (v *Vault) HasGPGKeysDir() bool { return v.hasGPGKeysDir() }

// AbsolutePath resolves a vault-relative path against the directory holding
// VaultPath (spec §4.3).
func (v *Vault) AbsolutePath(relative string) string {
	return filepath.Join(filepath.Dir(v.VaultPath), relative)
}

// SecretsPath returns the absolute secrets_dir.
func (v *Vault) SecretsPath() string { return v.AbsolutePath(v.SecretsDir) }

// RecipientsPath returns the absolute recipients_file.
func (v *Vault) RecipientsPath() string { return v.AbsolutePath(v.RecipientsFile) }

// GPGKeysPath returns the absolute gpg_keys_dir, or "" if unconfigured.
func (v *Vault) GPGKeysPath() string {
	if !v.hasGPGKeysDir() {
		return ""
	}
	return v.AbsolutePath(v.GPGKeysDir)
}

func (v *Vault) toRecord() record {
	r := record{
		Index:          v.Index,
		Kind:           v.Kind,
		SecretsDir:     v.SecretsDir,
		RecipientsFile: v.RecipientsFile,
	}
	if v.Name != "" {
		name := v.Name
		r.Name = &name
	}
	if v.GPGKeysDir != "" {
		dir := v.GPGKeysDir
		r.GPGKeysDir = &dir
	}
	return r
}

func fromRecord(r record, vaultPath string) *Vault {
	v := &Vault{
		Index:          r.Index,
		Kind:           r.Kind,
		SecretsDir:     r.SecretsDir,
		RecipientsFile: r.RecipientsFile,
		VaultPath:      vaultPath,
	}
	if r.Name != nil {
		v.Name = *r.Name
	}
	if r.GPGKeysDir != nil {
		v.GPGKeysDir = *r.GPGKeysDir
	}
	return v
}

var componentLog = log.With().Str("component", "vaultstore").Logger()

// Load reads and deserializes the configuration document at path into a
// tree, attaching VaultPath to every node and sorting partitions by Index
// ascending (spec §4.3).
func Load(path string) (*Vault, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &verr.FileIO{Mode: verr.Read, Path: path, Cause: err}
	}
	defer f.Close()

	var records []record
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&records); err != nil {
		return nil, &verr.Serialization{Direction: verr.Decode, Path: path, Cause: err}
	}

	var leader *Vault
	for _, r := range records {
		node := fromRecord(r, abs)
		if r.Kind == KindLeader {
			leader = node
			continue
		}
		if leader == nil {
			return nil, &verr.Serialization{Direction: verr.Decode, Path: path, Cause: fmt.Errorf("partition record (index %d) appeared before the leader record", r.Index)}
		}
		leader.Partitions = append(leader.Partitions, node)
	}
	if leader == nil {
		return nil, &verr.Serialization{Direction: verr.Decode, Path: path, Cause: fmt.Errorf("configuration document has no leader record")}
	}
	sort.Slice(leader.Partitions, func(i, j int) bool {
		return leader.Partitions[i].Index < leader.Partitions[j].Index
	})
	componentLog.Debug().Str("path", path).Int("partitions", len(leader.Partitions)).Msg("loaded vault configuration")
	return leader, nil
}

// Persist serializes leader (and its partitions) back to leader.VaultPath,
// in full, via the atomic-rename discipline of fsutil.WriteAtomic.
func Persist(leader *Vault, mode fsutil.WriteMode) error {
	records := make([]record, 0, 1+len(leader.Partitions))
	records = append(records, leader.toRecord())
	for _, p := range leader.Partitions {
		records = append(records, p.toRecord())
	}

	err := fsutil.WriteAtomic(leader.VaultPath, mode, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(records)
	})
	if err != nil {
		if _, ok := err.(*verr.ConfigurationFileExists); ok {
			return err
		}
		if fio, ok := err.(*verr.FileIO); ok {
			return &verr.Serialization{Direction: verr.Encode, Path: leader.VaultPath, Cause: fio.Cause}
		}
		return err
	}
	componentLog.Debug().Str("path", leader.VaultPath).Msg("persisted vault configuration")
	return nil
}

// Init creates a brand-new configuration document at path. It fails with
// *verr.ConfigurationFileExists if one already exists.
func Init(path, secretsDir, recipientsFile, gpgKeysDir string) (*Vault, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &verr.FileIO{Mode: verr.Write, Path: path, Cause: err}
	}
	leader := &Vault{
		Index:          0,
		Kind:           KindLeader,
		SecretsDir:     secretsDir,
		RecipientsFile: recipientsFile,
		GPGKeysDir:     gpgKeysDir,
		VaultPath:      abs,
	}
	if err := Persist(leader, fsutil.RefuseOverwrite); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(leader.SecretsPath(), 0o700); err != nil {
		return nil, &verr.FileIO{Mode: verr.Write, Path: leader.SecretsPath(), Cause: err}
	}
	if leader.hasGPGKeysDir() {
		if err := os.MkdirAll(leader.GPGKeysPath(), 0o700); err != nil {
			return nil, &verr.FileIO{Mode: verr.Write, Path: leader.GPGKeysPath(), Cause: err}
		}
	}
	return leader, nil
}

// maxIndex returns the largest index used anywhere in the tree.
func (v *Vault) maxIndex() int {
	max := v.Index
	for _, p := range v.Partitions {
		if p.Index > max {
			max = p.Index
		}
	}
	return max
}

// AddPartition appends a new partition rooted at path (relative to the
// leader's secrets directory's parent) with the given optional name,
// allocating the next index and deriving a default name from path's base
// name when name is empty — both rules are carried from
// original_source/lib/vault/src/partitions.rs, which spec.md's distillation
// did not spell out. It persists the updated document before returning.
func (v *Vault) AddPartition(path string, name string) (*Vault, error) {
	secretsParent := filepath.Dir(v.SecretsDir)
	partitionSecretsDir := filepath.Join(secretsParent, path)
	recipientsBase := filepath.Base(v.RecipientsFile)
	recipientsFile := filepath.Join(partitionSecretsDir, recipientsBase)

	if name == "" {
		name = filepath.Base(path)
	}

	partition := &Vault{
		Index:          v.maxIndex() + 1,
		Kind:           KindPartition,
		Name:           name,
		SecretsDir:     partitionSecretsDir,
		RecipientsFile: recipientsFile,
		VaultPath:      v.VaultPath,
	}
	v.Partitions = append(v.Partitions, partition)

	if err := Persist(v, fsutil.AllowOverwrite); err != nil {
		v.Partitions = v.Partitions[:len(v.Partitions)-1]
		return nil, err
	}

	abs := partition.SecretsPath()
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, &verr.FileIO{Mode: verr.Write, Path: abs, Cause: err}
	}
	componentLog.Info().Str("path", partitionSecretsDir).Str("name", name).Int("index", partition.Index).Msg("added partition")
	return partition, nil
}

// RemovePartition removes the partition at the given index from the tree
// and persists the result. The caller (partition.Resolve) is responsible
// for rejecting the leader's own index.
func (v *Vault) RemovePartition(index int) error {
	out := v.Partitions[:0]
	for _, p := range v.Partitions {
		if p.Index != index {
			out = append(out, p)
		}
	}
	removed := len(out) != len(v.Partitions)
	original := v.Partitions
	v.Partitions = out
	if !removed {
		return fmt.Errorf("BUG: no partition with index %d", index)
	}
	if err := Persist(v, fsutil.AllowOverwrite); err != nil {
		v.Partitions = original
		return err
	}
	componentLog.Info().Int("index", index).Msg("removed partition")
	return nil
}
