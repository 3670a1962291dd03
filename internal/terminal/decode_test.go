package terminal

import (
	"bytes"
	"testing"
)

func TestStreamDecoderPassthroughASCII(t *testing.T) {
	var d StreamDecoder
	out := d.Decode([]byte("hello world"))
	if string(out) != "hello world" {
		t.Fatalf("got %q", out)
	}
	if got := d.Flush(); got != nil {
		t.Fatalf("unexpected pending bytes: %q", got)
	}
}

func TestStreamDecoderSplitRune(t *testing.T) {
	// "héllo" with the two-byte é split across chunks.
	full := []byte("héllo")
	var d StreamDecoder

	first := d.Decode(full[:2]) // "h" + first byte of é
	if string(first) != "h" {
		t.Fatalf("first chunk: got %q, want %q", first, "h")
	}
	second := d.Decode(full[2:])
	if string(second) != "éllo" {
		t.Fatalf("second chunk: got %q, want %q", second, "éllo")
	}
}

func TestStreamDecoderThreeWaySplit(t *testing.T) {
	// 4-byte rune split into three deliveries.
	full := []byte("a\U0001F600b") // emoji between ASCII
	var d StreamDecoder

	var got []byte
	got = append(got, d.Decode(full[:2])...)
	got = append(got, d.Decode(full[2:4])...)
	got = append(got, d.Decode(full[4:])...)
	got = append(got, d.Flush()...)

	if !bytes.Equal(got, full) {
		t.Fatalf("reassembled: got %q, want %q", got, full)
	}
}

func TestStreamDecoderEveryByteBoundary(t *testing.T) {
	full := []byte("ありがとう — mixed テキスト ok")
	for split := 1; split < len(full); split++ {
		var d StreamDecoder
		var got []byte
		got = append(got, d.Decode(full[:split])...)
		got = append(got, d.Decode(full[split:])...)
		got = append(got, d.Flush()...)
		if !bytes.Equal(got, full) {
			t.Fatalf("split at %d: got %q, want %q", split, got, full)
		}
	}
}

func TestStreamDecoderInvalidBytesPassThrough(t *testing.T) {
	var d StreamDecoder
	junk := []byte{0xff, 0xfe, 0x80, 0x80}
	out := d.Decode(junk)
	out = append(out, d.Flush()...)
	if !bytes.Equal(out, junk) {
		t.Fatalf("invalid bytes should pass through: got %v, want %v", out, junk)
	}
}

func TestStreamDecoderFlushTruncatedRune(t *testing.T) {
	var d StreamDecoder
	// First two bytes of a three-byte rune, never completed.
	out := d.Decode([]byte{0xe3, 0x81})
	if len(out) != 0 {
		t.Fatalf("incomplete rune should be held back, got %v", out)
	}
	flushed := d.Flush()
	if !bytes.Equal(flushed, []byte{0xe3, 0x81}) {
		t.Fatalf("flush: got %v", flushed)
	}
}

func TestStreamDecoderEmptyChunk(t *testing.T) {
	var d StreamDecoder
	if out := d.Decode(nil); out != nil {
		t.Fatalf("got %v, want nil", out)
	}
}
