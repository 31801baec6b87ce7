package tftp

import (
	"bytes"
	"strconv"
	"strings"
)

// Mode is the TFTP transfer mode.
type Mode int

const (
	ModeOctet Mode = iota
	ModeNetascii
)

// request is the result of successfully parsing an opening RRQ/WRQ
// datagram.
type request struct {
	opcode   Opcode
	filename string
	mode     Mode
	options  map[string]string
	oack     []byte // nil if no option was accepted
}

// parseRequest validates the first datagram received from a new peer,
// per spec section 4.2. isWriting is consulted to enforce "no existing
// WRQ session already writing that filename" (spec rule 6); pass a
// function that reports whether some other in-flight session already
// holds that filename open for writing. A false return from
// parseRequest means the packet must be dropped silently.
func parseRequest(data []byte, isWriting func(filename string) bool) (request, bool) {
	var req request

	if len(data) > MaxRequestSize {
		return req, false
	}

	opcode, ok := opcodeOf(data)
	if !ok {
		return req, false
	}
	if opcode != OpRRQ && opcode != OpWRQ {
		return req, false
	}
	req.opcode = opcode

	parts := bytes.Split(data[2:], []byte{0})
	if len(parts) < 2 {
		return req, false
	}

	filename := string(parts[0])
	mode := strings.ToLower(string(parts[1]))

	switch mode {
	case "octet":
		req.mode = ModeOctet
	case "netascii":
		req.mode = ModeNetascii
	default:
		return req, false
	}

	filename, ok = sanitizeFilename(filename)
	if !ok {
		return req, false
	}

	if isWriting != nil && isWriting(filename) {
		return req, false
	}
	req.filename = filename

	opts := parseOptions(parts[2:])
	req.options = opts
	if len(opts) > 0 {
		ordered := make([]option, 0, len(opts))
		if v, ok := opts["blksize"]; ok {
			ordered = append(ordered, option{name: "blksize", value: v})
		}
		req.oack = buildOACK(ordered)
	}

	return req, true
}

// sanitizeFilename applies spec rule 5.
func sanitizeFilename(filename string) (string, bool) {
	if len(filename) < 1 || len(filename) > 256 {
		return "", false
	}
	if filename[0] == '.' {
		return "", false
	}
	if filename[0] == '\\' || filename[0] == '/' {
		if len(filename) == 1 {
			return "", false
		}
		filename = filename[1:]
	}
	if filename[0] == '.' {
		return "", false
	}

	check := strings.NewReplacer(".", "x", "-", "x", "_", "x").Replace(filename)
	if !isAlphanumericASCII(check) {
		return "", false
	}

	return filename, true
}

func isAlphanumericASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// parseOptions parses the NUL-separated (name, value) pairs following
// filename and mode. Only blksize is recognized; everything else is
// ignored per spec rule 7.
func parseOptions(parts [][]byte) map[string]string {
	opts := make(map[string]string)

	// drop a trailing empty element produced by the final NUL
	if len(parts) > 0 && len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 || len(parts)%2 != 0 {
		return opts
	}

	for i := 0; i+1 < len(parts); i += 2 {
		name := strings.ToLower(string(parts[i]))
		value := string(parts[i+1])

		if name != "blksize" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		if n > MaxBlockSize {
			n = MaxBlockSize
		}
		if n < MinBlockSize {
			continue
		}
		opts["blksize"] = strconv.Itoa(n)
	}

	return opts
}

// blockSize returns the negotiated block size, or DefaultBlockSize if
// none was accepted.
func (r request) blockSize() int {
	if v, ok := r.options["blksize"]; ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return DefaultBlockSize
}
