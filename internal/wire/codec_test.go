package wire

import "testing"

func TestLE64RoundTrip(t *testing.T) {
	dst := make([]byte, 8)
	EncodeLE64(dst, 0x5ADFACE)
	got := DecodeLE64(dst)
	if got != 0x5ADFACE {
		t.Fatalf("got %x, want %x", got, 0x5ADFACE)
	}
}

func TestLE32RoundTrip(t *testing.T) {
	dst := make([]byte, 4)
	EncodeLE32(dst, 0x34C2BDC3)
	got := DecodeLE32(dst)
	if got != 0x34C2BDC3 {
		t.Fatalf("got %x, want %x", got, 0x34C2BDC3)
	}
}

func TestEncodeDecodeHeader(t *testing.T) {
	payload := []byte(`[1,"term"]`)
	frame := EncodeFrame(0x5ADFACE, payload)

	if len(frame) != HeaderLen+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), HeaderLen+len(payload))
	}

	tok, length := DecodeHeader(frame[:HeaderLen])
	if tok != 0x5ADFACE {
		t.Fatalf("token = %x, want %x", tok, 0x5ADFACE)
	}
	if int(length) != len(payload) {
		t.Fatalf("length = %d, want %d", length, len(payload))
	}
	if string(frame[HeaderLen:]) != string(payload) {
		t.Fatalf("payload mismatch: got %q", frame[HeaderLen:])
	}
}
