package transfer

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// isUTF8 reports whether label names no conversion at all.
func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// lookupEncoding resolves a WHATWG encoding label. Empty and UTF-8 labels
// return nil, meaning no conversion is needed.
func lookupEncoding(label string) (encoding.Encoding, error) {
	if isUTF8(label) {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return enc, nil
}

// textEncoder converts UTF-8 text chunks into a target encoding. A rune
// split across chunk boundaries is held back until the next chunk.
type textEncoder struct {
	enc   encoding.Encoding
	carry []byte
}

func newTextEncoder(enc encoding.Encoding) *textEncoder {
	return &textEncoder{enc: enc}
}

// encode converts chunk. When final is set, any held back bytes are
// flushed as-is through the encoder.
func (e *textEncoder) encode(chunk []byte, final bool) ([]byte, error) {
	src := append(e.carry, chunk...)
	e.carry = nil

	if !final {
		cut := completeRunes(src)
		if cut < len(src) {
			e.carry = append([]byte(nil), src[cut:]...)
			src = src[:cut]
		}
	}
	if len(src) == 0 {
		return nil, nil
	}

	out, err := encoding.ReplaceUnsupported(e.enc.NewEncoder()).Bytes(src)
	if err != nil {
		return nil, fmt.Errorf("encoding to %s: %w", e.enc, err)
	}
	return out, nil
}

// completeRunes returns the length of the longest prefix of b that does not
// end in the middle of a UTF-8 sequence.
func completeRunes(b []byte) int {
	// A UTF-8 sequence is at most 4 bytes, so only the tail needs checking.
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// hexlify returns the lowercase hex view of chunk.
func hexlify(chunk []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(chunk)))
	hex.Encode(out, chunk)
	return out
}

// dehexlifier converts hex text back into bytes. Whitespace is ignored and
// an odd trailing digit is carried into the next chunk.
type dehexlifier struct {
	pending byte
	hasPend bool
}

func (d *dehexlifier) decode(chunk []byte) ([]byte, error) {
	digits := make([]byte, 0, len(chunk)+1)
	if d.hasPend {
		digits = append(digits, d.pending)
		d.hasPend = false
	}
	for _, c := range chunk {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		d.pending = digits[len(digits)-1]
		d.hasPend = true
		digits = digits[:len(digits)-1]
	}

	out := make([]byte, hex.DecodedLen(len(digits)))
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return out, nil
}

// finish reports an error if a lone hex digit is left over.
func (d *dehexlifier) finish() error {
	if d.hasPend {
		return fmt.Errorf("decoding hex: odd number of hex digits")
	}
	return nil
}
