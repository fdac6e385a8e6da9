// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixafter/aegis/curve"
	"github.com/sixafter/aegis/prng"
)

func newPair(t *testing.T) (*ClientState, *ServerState) {
	t.Helper()
	clientRng, err := prng.New([]byte("clientseed"))
	require.NoError(t, err)
	serverRng, err := prng.New([]byte("serverseed"))
	require.NoError(t, err)

	client, err := NewClient(clientRng)
	require.NoError(t, err)
	server, err := NewServer(serverRng)
	require.NoError(t, err)

	return client, server
}

// Test_Handshake_Agreement checks that for any independently-generated
// client/server pair, the two sides derive the same session secret.
func Test_Handshake_Agreement(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	client, server := newPair(t)

	req, err := client.Request()
	require.NoError(err)

	resp, serverSecret, err := server.Handshake(req)
	require.NoError(err)

	sp, err := server.PublicKey()
	require.NoError(err)

	clientSecret, err := client.Handshake(sp, resp)
	require.NoError(err)

	is.Equal(serverSecret, clientSecret)
}

// Test_Handshake_TamperEP checks that flipping a bit of EP in the
// response causes the client to reject.
func Test_Handshake_TamperEP(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	client, server := newPair(t)

	req, err := client.Request()
	require.NoError(err)
	resp, _, err := server.Handshake(req)
	require.NoError(err)

	sp, err := server.PublicKey()
	require.NoError(err)

	resp[0] ^= 0xFF
	_, err = client.Handshake(sp, resp)
	is.Error(err)
}

// Test_Handshake_TamperSN checks that flipping a bit of SN causes the
// client to reject.
func Test_Handshake_TamperSN(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	client, server := newPair(t)

	req, err := client.Request()
	require.NoError(err)
	resp, _, err := server.Handshake(req)
	require.NoError(err)

	sp, err := server.PublicKey()
	require.NoError(err)

	resp[curve.PointSize] ^= 0xFF
	_, err = client.Handshake(sp, resp)
	is.Error(err)
}

// Test_Handshake_TamperProof checks that flipping a bit of the server's
// proof causes the client to reject.
func Test_Handshake_TamperProof(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	client, server := newPair(t)

	req, err := client.Request()
	require.NoError(err)
	resp, _, err := server.Handshake(req)
	require.NoError(err)

	sp, err := server.PublicKey()
	require.NoError(err)

	resp[ResponseSize-1] ^= 0xFF
	_, err = client.Handshake(sp, resp)
	is.ErrorIs(err, ErrProofMismatch)
}

// Test_Rekey_PromotesFreshEphemeral checks that after a Rekey call, the
// next handshake's EP differs from the previous one's.
func Test_Rekey_PromotesFreshEphemeral(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	client, server := newPair(t)

	req, err := client.Request()
	require.NoError(err)
	resp1, _, err := server.Handshake(req)
	require.NoError(err)
	ep1 := resp1[:curve.PointSize]

	require.NoError(server.Rekey([]byte("rekey-context")))

	client2, err := NewClient(client.rng)
	require.NoError(err)
	req2, err := client2.Request()
	require.NoError(err)
	resp2, _, err := server.Handshake(req2)
	require.NoError(err)
	ep2 := resp2[:curve.PointSize]

	is.NotEqual(ep1, ep2)
}

// Test_Rekey_NoOpWhenAlreadyStaged ensures a second Rekey call before any
// handshake consumes the first staged key is a no-op rather than an error
// or a second overwrite, 
func Test_Rekey_NoOpWhenAlreadyStaged(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	_, server := newPair(t)

	require.NoError(server.Rekey([]byte("first")))
	staged1, _ := server.staged.Load().(*stagedMaterial)

	require.NoError(server.Rekey([]byte("second")))
	staged2, _ := server.staged.Load().(*stagedMaterial)

	is.Same(staged1, staged2)
}

// Test_NewServerFromIdentity_PreservesPublicKey ensures a server rebuilt
// from a persisted (SS, nonceKey) pair exposes the same public key and
// signing material as the original, with a freshly sampled ephemeral key.
func Test_NewServerFromIdentity_PreservesPublicKey(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	rng, err := prng.New([]byte("identity-seed"))
	require.NoError(err)

	original, err := NewServer(rng)
	require.NoError(err)

	ss := original.Scalar()
	nonceKey := original.NonceKey()

	rng2, err := prng.New([]byte("identity-seed-2"))
	require.NoError(err)

	reloaded, err := NewServerFromIdentity(rng2, ss, nonceKey)
	require.NoError(err)

	pub1, err := original.PublicKey()
	require.NoError(err)
	pub2, err := reloaded.PublicKey()
	require.NoError(err)
	is.Equal(pub1, pub2)
	is.Equal(nonceKey, reloaded.NonceKey())
}

// Test_NewServerFromIdentity_RejectsZeroScalar ensures a zero persisted
// identity scalar is rejected rather than silently accepted.
func Test_NewServerFromIdentity_RejectsZeroScalar(t *testing.T) {
	t.Parallel()
	is := assert.New(t)
	require := require.New(t)

	rng, err := prng.New([]byte("identity-seed-3"))
	require.NoError(err)

	var zero curve.Scalar
	var nonceKey [32]byte
	_, err = NewServerFromIdentity(rng, zero, nonceKey)
	is.ErrorIs(err, ErrZeroIdentity)
}

// Test_Request_RequiresInitialized ensures a zero-value ClientState refuses.
func Test_Request_RequiresInitialized(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var c ClientState
	_, err := c.Request()
	is.ErrorIs(err, ErrNotInitialized)
}

// Test_Handshake_RequiresInitialized ensures a zero-value ServerState
// refuses.
func Test_Handshake_RequiresInitialized(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var s ServerState
	var req [RequestSize]byte
	_, _, err := s.Handshake(req)
	is.ErrorIs(err, ErrNotInitialized)
}
