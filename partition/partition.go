// Package partition is the Partition Resolver (spec §4.4): given a
// user-supplied selector, it returns exactly one partition or a well-typed
// error. Control flow is translated line-for-line from
// original_source/lib/vault/src/partitions.rs's partition_index function.
package partition

import (
	"path/filepath"
	"strconv"

	"github.com/burakince/vault/vaultstore"
	"github.com/burakince/vault/verr"
)

// Resolve finds exactly one partition of leader matching selector, trying
// in order: integer index, then secrets_dir path, then name. forRemoval
// additionally refuses the leader's own index with
// *verr.RefusesToRemoveLeader; selection-only callers (forRemoval == false)
// may select the leader itself.
func Resolve(selector string, leader *vaultstore.Vault, forRemoval bool) (*vaultstore.Vault, error) {
	if index, err := strconv.Atoi(selector); err == nil {
		if forRemoval && index == leader.Index {
			return nil, &verr.RefusesToRemoveLeader{Index: index}
		}
		if index == leader.Index {
			return leader, nil
		}
		for _, p := range leader.Partitions {
			if p.Index == index {
				return p, nil
			}
		}
		return nil, &verr.NoMatchingPartition{Selector: selector}
	}

	selectorPath := filepath.Clean(selector)
	var matches []*vaultstore.Vault
	for _, p := range leader.Partitions {
		if filepath.Clean(p.SecretsDir) == selectorPath {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		for _, p := range leader.Partitions {
			if p.Name != "" && p.Name == selector {
				matches = append(matches, p)
			}
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &verr.NoMatchingPartition{Selector: selector}
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.SecretsDir
		}
		return nil, &verr.AmbiguousSelector{Selector: selector, Matches: names}
	}
}
