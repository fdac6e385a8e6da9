// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package aegis

import "errors"

var (
	// ErrVersionMismatch is returned when a caller-supplied version does
	// not match the compiled-in version, initialization
	// version handshake.
	ErrVersionMismatch = errors.New("aegis: version mismatch")

	// ErrInvalidSecretBlob is returned by LoadServerSecret when the input
	// does not decode to a valid long-term identity: a zero scalar, or a
	// scalar that is not the canonical encoding of an element of [0, q-1].
	ErrInvalidSecretBlob = errors.New("aegis: invalid server secret blob")
)
