package tftp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0644))
}

func TestRRQSessionSimpleTransfer(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 1500)
	for i := range content {
		content[i] = byte(i)
	}
	writeTestFile(t, dir, "hello.bin", content)

	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(1, "hello.bin", "octet"), nil)
	require.True(t, ok)

	var notified []string
	s := newRRQSession(testPeer(), req, store, func(l string) { notified = append(notified, l) })

	rs := &recordingSend{}
	var sent []byte

	for i := 0; i < 10 && !s.Expired(); i++ {
		s.SendOne(rs.send)
		last := rs.packets[len(rs.packets)-1]
		require.Equal(t, OpDATA, Opcode(last[1]))
		sent = append(sent, last[4:]...)
		if len(last) < 4+DefaultBlockSize {
			// final block: acking it terminates the session
			s.Incoming(buildACK(uint16(i + 1)))
			break
		}
		s.Incoming(buildACK(uint16(i + 1)))
	}

	assert.True(t, s.Expired())
	assert.Equal(t, content, sent)
	assert.Contains(t, notified[len(notified)-1], "1500 bytes of hello.bin sent to")
}

func TestRRQSessionFileNotFound(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(1, "missing.bin", "octet"), nil)
	require.True(t, ok)

	s := newRRQSession(testPeer(), req, store, nil)
	require.Equal(t, byte(OpERROR), s.PendingTx()[1])
	require.Equal(t, byte(ErrFileNotFound), s.PendingTx()[3])

	rs := &recordingSend{}
	s.SendOne(rs.send)
	assert.True(t, s.Expired())
}

func TestRRQSessionRetransmitIsByteIdentical(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a real RTT TTL expiry")
	}

	dir := t.TempDir()
	writeTestFile(t, dir, "f.bin", []byte("0123456789"))
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(1, "f.bin", "octet"), nil)
	require.True(t, ok)

	s := newRRQSession(testPeer(), req, store, nil)
	rs := &recordingSend{}
	s.SendOne(rs.send) // starts the RTT estimator; initial TTL is 1.5s
	first := append([]byte(nil), rs.packets[0]...)

	time.Sleep(1600 * time.Millisecond)
	s.Poll(time.Now())
	require.False(t, s.Expired())
	require.NotEmpty(t, s.pendingTx)

	s.SendOne(rs.send)
	assert.Equal(t, first, rs.packets[len(rs.packets)-1])
}

func TestRRQSessionOACKThenFirstData(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.bin", []byte("abcdef"))
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(1, "f.bin", "octet", "blksize", "1024"), nil)
	require.True(t, ok)

	s := newRRQSession(testPeer(), req, store, nil)
	require.Equal(t, byte(OpOACK), s.PendingTx()[1])

	rs := &recordingSend{}
	s.SendOne(rs.send) // sends the OACK
	s.Incoming(buildACK(0))

	require.Equal(t, byte(OpDATA), s.PendingTx()[1])
	s.SendOne(rs.send)
	last := rs.packets[len(rs.packets)-1]
	assert.Equal(t, []byte("abcdef"), last[4:])
}

func TestRRQSessionNetasciiTranslatesLF(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "f.txt", []byte("a\nb"))
	store := Store{Root: dir}
	req, ok := parseRequest(buildRequest(1, "f.txt", "netascii"), nil)
	require.True(t, ok)

	s := newRRQSession(testPeer(), req, store, nil)
	rs := &recordingSend{}
	s.SendOne(rs.send)
	assert.Equal(t, []byte("a\r\nb"), rs.packets[0][4:])
}
