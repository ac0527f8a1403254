// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir resolves the snapshot directory: $STRONGHOLD/snapshots if
// STRONGHOLD is set, else $HOME/.stronghold/snapshots. The directory
// is created with owner-only permissions if it does not exist.
func Dir() (string, error) {
	var base string
	if env, ok := os.LookupEnv("STRONGHOLD"); ok && env != "" {
		base = env
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: home directory: %v", ErrIO, err)
		}
		base = filepath.Join(home, ".stronghold")
	}

	dir := filepath.Join(base, "snapshots")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: mkdir: %v", ErrIO, err)
	}
	return dir, nil
}

// Path constructs the path to a snapshot named name (defaults to
// "main") under Dir().
func Path(name string) (string, error) {
	if name == "" {
		name = "main"
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".stronghold"), nil
}
