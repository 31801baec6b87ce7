package tftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeNetascii(t *testing.T) {
	assert.Equal(t, []byte("a\r\nb"), encodeNetascii([]byte("a\nb")))
	assert.Equal(t, []byte{'a', '\r', 0, 'b'}, encodeNetascii([]byte{'a', '\r', 'b'}))
	assert.Equal(t, []byte("plain"), encodeNetascii([]byte("plain")))
}

func TestDecodeNetasciiRoundTrip(t *testing.T) {
	raw := []byte("line one\nline two\rline three")
	encoded := encodeNetascii(raw)

	var d netasciiDecoder
	decoded := d.decode(encoded)
	decoded = append(decoded, d.flush()...)

	assert.Equal(t, raw, decoded)
}

func TestDecodeNetasciiSplitAcrossCalls(t *testing.T) {
	raw := []byte("abc\ndef")
	encoded := encodeNetascii(raw)

	// split the encoded stream right between the \r and \n
	idx := -1
	for i, b := range encoded {
		if b == '\r' {
			idx = i
			break
		}
	}
	splitAt := idx + 1
	first, second := encoded[:splitAt], encoded[splitAt:]

	var d netasciiDecoder
	out := d.decode(first)
	out = append(out, d.decode(second)...)
	out = append(out, d.flush()...)

	assert.Equal(t, raw, out)
}

func TestDecodeNetasciiTrailingCR(t *testing.T) {
	var d netasciiDecoder
	out := d.decode([]byte{'a', '\r'})
	out = append(out, d.flush()...)
	assert.Equal(t, []byte{'a', '\r'}, out)
}
