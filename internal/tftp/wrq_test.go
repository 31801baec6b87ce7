package tftp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWRQSessionSimpleTransfer(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(2, "up.bin", "octet"), nil)
	require.True(t, ok)

	var notified []string
	s := newWRQSession(testPeer(), req, store, func(l string) { notified = append(notified, l) })
	require.Equal(t, []byte{0, byte(OpACK), 0, 0}, s.PendingTx())

	rs := &recordingSend{}
	s.SendOne(rs.send) // initial ACK 0

	block1 := make([]byte, DefaultBlockSize)
	for i := range block1 {
		block1[i] = byte(i)
	}
	s.Incoming(buildDATA(1, block1))
	require.Equal(t, buildACK(1), s.PendingTx())
	s.SendOne(rs.send)

	block2 := []byte("tail")
	s.Incoming(buildDATA(2, block2))
	require.Equal(t, buildACK(2), s.PendingTx())
	s.SendOne(rs.send)

	assert.True(t, s.Expired())

	written, err := os.ReadFile(filepath.Join(dir, "up.bin"))
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, block1...), block2...), written)
	assert.Contains(t, notified[len(notified)-1], "516 bytes of up.bin received from")
}

func TestWRQSessionFileAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "up.bin", []byte("existing"))
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(2, "up.bin", "octet"), nil)
	require.True(t, ok)

	s := newWRQSession(testPeer(), req, store, nil)
	require.Equal(t, byte(ErrFileExists), s.PendingTx()[3])

	rs := &recordingSend{}
	s.SendOne(rs.send)
	assert.True(t, s.Expired())
}

func TestWRQSessionRejectsOversizedBlock(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(2, "up.bin", "octet"), nil)
	require.True(t, ok)

	s := newWRQSession(testPeer(), req, store, nil)
	rs := &recordingSend{}
	s.SendOne(rs.send) // ACK 0

	tooBig := make([]byte, DefaultBlockSize+1)
	s.Incoming(buildDATA(1, tooBig))

	require.Equal(t, byte(OpERROR), s.PendingTx()[1])
	require.Equal(t, byte(ErrIllegalOp), s.PendingTx()[3])
}

func TestWRQSessionDuplicateBlockIgnored(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(2, "up.bin", "octet"), nil)
	require.True(t, ok)

	s := newWRQSession(testPeer(), req, store, nil)
	rs := &recordingSend{}
	s.SendOne(rs.send) // ACK 0

	block1 := make([]byte, DefaultBlockSize)
	for i := range block1 {
		block1[i] = byte(i)
	}
	s.Incoming(buildDATA(1, block1))
	require.Equal(t, buildACK(1), s.PendingTx())
	s.SendOne(rs.send) // ACK 1 goes out, pendingTx drained, estimator starts

	// the client never saw ACK 1 and resends DATA block 1 a second
	// time; spec/source ignore any block-number mismatch identically,
	// including an exact duplicate of the last-accepted block, and
	// rely on the session's own retransmit timer to re-send ACK 1.
	s.Incoming(buildDATA(1, block1))
	assert.Empty(t, s.PendingTx())
	assert.False(t, s.Expired())

	written, err := os.ReadFile(filepath.Join(dir, "up.bin"))
	require.NoError(t, err)
	assert.Equal(t, block1, written)
}

func TestWRQSessionOutOfOrderBlockIgnored(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(2, "up.bin", "octet"), nil)
	require.True(t, ok)

	s := newWRQSession(testPeer(), req, store, nil)
	rs := &recordingSend{}
	s.SendOne(rs.send) // ACK 0

	s.Incoming(buildDATA(2, []byte("skip ahead"))) // out of order, must be ignored
	assert.Empty(t, s.PendingTx())
}
