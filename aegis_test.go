// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package aegis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_ClientServer_HandshakeAgreement checks that a client and server
// built through the root facade derive the same session secret.
func Test_ClientServer_HandshakeAgreement(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	server, err := NewServer(WithExtra([]byte("serverseed")))
	require.NoError(err)
	client, err := NewClient(WithExtra([]byte("clientseed")))
	require.NoError(err)

	req, err := client.Request()
	require.NoError(err)

	resp, serverSecret, err := server.Handshake(req)
	require.NoError(err)

	pub, err := server.PublicKey()
	require.NoError(err)

	clientSecret, err := client.Handshake(pub, resp)
	require.NoError(err)

	is.Equal(serverSecret, clientSecret)
}

// Test_Server_SignVerify_RoundTrip checks that a signature produced by
// a Server verifies against that server's public key, through the root
// facade.
func Test_Server_SignVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	server, err := NewServer()
	require.NoError(err)

	sig, err := server.Sign([]byte("abc"))
	require.NoError(err)

	pub, err := server.PublicKey()
	require.NoError(err)

	is.NoError(Verify([]byte("abc"), pub, sig))
	is.Error(Verify([]byte("abd"), pub, sig))
}

// Test_Server_SaveLoadSecret_PreservesIdentity ensures a server reloaded
// from a persisted secret blob signs with the same long-term key and
// exposes the same public key, even though its ephemeral handshake key is
// freshly sampled.
func Test_Server_SaveLoadSecret_PreservesIdentity(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	server, err := NewServer()
	require.NoError(err)

	blob := server.SaveSecret()
	reloaded, err := LoadServerSecret(blob)
	require.NoError(err)

	pub1, err := server.PublicKey()
	require.NoError(err)
	pub2, err := reloaded.PublicKey()
	require.NoError(err)
	is.Equal(pub1, pub2)

	sig, err := reloaded.Sign([]byte("hello"))
	require.NoError(err)
	is.NoError(Verify([]byte("hello"), pub1, sig))
}

// Test_Server_SaveLoadSecret_File exercises the file persistence round
// trip with 0600 permissions.
func Test_Server_SaveLoadSecret_File(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	server, err := NewServer()
	require.NoError(err)

	path := filepath.Join(t.TempDir(), "nested", "server.secret")
	require.NoError(server.SaveSecretToFile(path))

	reloaded, err := LoadServerSecretFromFile(path)
	require.NoError(err)

	pub1, err := server.PublicKey()
	require.NoError(err)
	pub2, err := reloaded.PublicKey()
	require.NoError(err)
	is.Equal(pub1, pub2)
}

// Test_CheckVersion covers the version handshake.
func Test_CheckVersion(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	is.NoError(CheckVersion(CurrentVersion))
	is.ErrorIs(CheckVersion(CurrentVersion+1), ErrVersionMismatch)

	_, err := NewServer(WithVersion(CurrentVersion + 1))
	is.ErrorIs(err, ErrVersionMismatch)
}

// Test_LoadServerSecret_RejectsWrongSize ensures the file loader rejects a
// blob of the wrong length rather than silently truncating or padding it.
func Test_LoadServerSecret_RejectsWrongSize(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "bad.secret")
	require.NoError(os.WriteFile(path, []byte("too short"), 0600))

	_, err := LoadServerSecretFromFile(path)
	is.ErrorIs(err, ErrInvalidSecretBlob)
}
