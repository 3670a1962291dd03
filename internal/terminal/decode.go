package terminal

import "unicode/utf8"

// StreamDecoder repairs UTF-8 sequences split across read chunks.
//
// Shell output arrives in arbitrary chunk boundaries; a multi-byte rune can
// start at the end of one chunk and finish in the next. The decoder holds
// back an incomplete trailing sequence (at most 3 bytes) and prepends it to
// the next chunk, so every returned slice ends on a rune boundary. Bytes
// that are not valid UTF-8 at all pass through unchanged — the terminal on
// the other end deals with them.
//
// Not safe for concurrent use; each session owns one decoder.
type StreamDecoder struct {
	pending [utf8.UTFMax - 1]byte
	n       int
}

// Decode returns chunk (with any previously held-back bytes prepended) cut
// at the last complete rune boundary. The returned slice may alias chunk.
func (d *StreamDecoder) Decode(chunk []byte) []byte {
	if len(chunk) == 0 {
		return nil
	}

	buf := chunk
	if d.n > 0 {
		joined := make([]byte, 0, d.n+len(chunk))
		joined = append(joined, d.pending[:d.n]...)
		joined = append(joined, chunk...)
		buf = joined
		d.n = 0
	}

	cut := incompleteTailStart(buf)
	d.n = copy(d.pending[:], buf[cut:])
	return buf[:cut]
}

// Flush returns any bytes still held back. Called once at stream end so a
// truncated final sequence is not swallowed.
func (d *StreamDecoder) Flush() []byte {
	if d.n == 0 {
		return nil
	}
	out := make([]byte, d.n)
	copy(out, d.pending[:d.n])
	d.n = 0
	return out
}

// incompleteTailStart returns the index where an incomplete trailing UTF-8
// sequence begins, or len(buf) when the buffer ends on a rune boundary.
func incompleteTailStart(buf []byte) int {
	end := len(buf)
	for i := end - 1; i >= 0 && i >= end-utf8.UTFMax; i-- {
		b := buf[i]
		if b < utf8.RuneSelf {
			// ASCII byte: everything before is complete.
			return end
		}
		if b >= 0xC0 {
			// Leading byte of a multi-byte rune.
			if !utf8.FullRune(buf[i:]) {
				return i
			}
			return end
		}
		// Continuation byte: keep scanning backwards.
	}
	// No leading byte within reach: the tail is not a split rune, just
	// invalid bytes. Pass them through.
	return end
}
