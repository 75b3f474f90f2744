package main

import (
	"bytes"
	"os"

	"golang.org/x/crypto/openpgp"
	_ "golang.org/x/crypto/ripemd160"

	"github.com/burakince/vault/engine"
	"github.com/spf13/cobra"
)

// loadEngine builds an OpenPGPEngine from the --secret-key and
// --public-keyring flags. The in-process engine has no home directory and
// reads nothing from the environment; this front-end, not the core, decides
// how keys reach the process.
func loadEngine(cmd *cobra.Command) (*engine.OpenPGPEngine, error) {
	eng := engine.NewOpenPGPEngine()

	secretKeyPath, _ := cmd.Flags().GetString("secret-key")
	if secretKeyPath != "" {
		data, err := os.ReadFile(secretKeyPath)
		if err != nil {
			return nil, fail("could not read --secret-key %q: %v", secretKeyPath, err)
		}
		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fail("could not parse --secret-key %q: %v", secretKeyPath, err)
		}
		for _, entity := range entities {
			if err := eng.LoadSecretEntity(entity); err != nil {
				return nil, fail("could not load secret key from %q: %v", secretKeyPath, err)
			}
		}
	}

	publicKeyringPath, _ := cmd.Flags().GetString("public-keyring")
	if publicKeyringPath != "" {
		data, err := os.ReadFile(publicKeyringPath)
		if err != nil {
			return nil, fail("could not read --public-keyring %q: %v", publicKeyringPath, err)
		}
		if _, err := eng.ImportArmored(data); err != nil {
			return nil, fail("could not import --public-keyring %q: %v", publicKeyringPath, err)
		}
	}

	return eng, nil
}
