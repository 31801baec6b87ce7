package tftp

import (
	"bytes"
	"errors"
	"io"
	"net"
)

// memFile is an in-memory File that can stand in for a real *os.File in
// session tests; the current tests use a Store over a temp directory.
type memFile struct {
	r      *bytes.Reader
	w      *bytes.Buffer
	closed bool
}

func newMemFileRead(content []byte) *memFile {
	return &memFile{r: bytes.NewReader(content)}
}

func newMemFileWrite() *memFile {
	return &memFile{w: &bytes.Buffer{}}
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, io.EOF
	}
	return f.r.Read(p)
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.w == nil {
		return 0, errors.New("memFile: not open for write")
	}
	return f.w.Write(p)
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func testPeer() Peer {
	return Peer{IP: net.ParseIP("192.168.1.10"), Port: 34567}
}

// recordingSend captures every packet a session hands to send_one; its
// send func always reports the whole buffer sent.
type recordingSend struct {
	packets [][]byte
}

func (r *recordingSend) send(b []byte, p Peer) (int, error) {
	cp := append([]byte(nil), b...)
	r.packets = append(r.packets, cp)
	return len(b), nil
}
