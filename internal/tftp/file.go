package tftp

import (
	"os"
	"path/filepath"
)

// File is the minimal handle a Session needs: read blocks, write blocks,
// close. *os.File satisfies it directly.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Store resolves sanitized filenames against the tftp root directory and
// opens them for read or write, playing the same role protonuke's
// FileDriver plays for its FTP server: a thin, swappable storage
// backend behind the session state machines. Unlike FileDriver (which
// stubs out writes entirely, since protonuke's FTP server only ever
// serves a single generated image), Store performs real reads and
// writes, since RRQ and WRQ both move real file content.
type Store struct {
	Root string
}

// realPath joins a sanitized, already-relative filename onto the root.
// Sanitization (rejecting '.', stripping a leading slash, and so on) is
// the Request Parser's job (spec section 4.2); Store trusts its input.
func (s Store) realPath(filename string) string {
	return filepath.Join(s.Root, filename)
}

// Exists reports whether filename exists in the store, and whether it
// is a directory.
func (s Store) Exists(filename string) (exists bool, isDir bool) {
	info, err := os.Stat(s.realPath(filename))
	if err != nil {
		return false, false
	}
	return true, info.IsDir()
}

// OpenRead opens filename for reading (RRQ).
func (s Store) OpenRead(filename string) (File, error) {
	return os.Open(s.realPath(filename))
}

// OpenWrite creates filename for writing (WRQ). It fails if the file
// already exists; the caller (WRQ session construction) has already
// checked this with Exists, but O_EXCL closes the race.
func (s Store) OpenWrite(filename string) (File, error) {
	return os.OpenFile(s.realPath(filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}
