// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package aegis

import (
	"fmt"
	"os"
	"path/filepath"
)

// SaveSecretToFile persists the server's 64-byte long-term secret to path,
// creating parent directories as needed. The write is atomic (temp file
// plus rename) so a crash mid-write never leaves a partially-written
// secret at path, the parent directory is created 0700, and the final
// file is 0600.
func (s *Server) SaveSecretToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("aegis: create secret directory: %w", err)
	}

	blob := s.SaveSecret()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob[:], 0600); err != nil {
		return fmt.Errorf("aegis: write secret: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("aegis: persist secret: %w", err)
	}
	return nil
}

// LoadServerSecretFromFile reads a secret blob previously written by
// SaveSecretToFile and rebuilds a Server around it.
func LoadServerSecretFromFile(path string, opts ...Option) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("aegis: read secret: %w", err)
	}
	if len(data) != SecretBlobSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSecretBlob, len(data), SecretBlobSize)
	}

	var blob [SecretBlobSize]byte
	copy(blob[:], data)
	return LoadServerSecret(blob, opts...)
}
