package proofread

import (
	"bytes"
	"testing"
)

func TestSerializeData(t *testing.T) {
	data := []byte("the quick brown supervoxel jumps over the lazy merge queue, repeatedly, repeatedly, repeatedly")

	for _, compression := range []Compression{Uncompressed, Snappy} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			s, err := SerializeData(data, compression, checksum)
			if err != nil {
				t.Fatalf("SerializeData(%s, %s): %v", compression, checksum, err)
			}
			if len(s) == 0 {
				t.Errorf("SerializeData(%s, %s) gave zero-length output", compression, checksum)
			}
			out, err := DeserializeData(s)
			if err != nil {
				t.Fatalf("DeserializeData(%s, %s): %v", compression, checksum, err)
			}
			if !bytes.Equal(out, data) {
				t.Errorf("Roundtrip with %s, %s: got %q, expected %q", compression, checksum, out, data)
			}
		}
	}
}

func TestSerializeChecksumDetectsCorruption(t *testing.T) {
	data := []byte("some session snapshot bytes")
	s, err := SerializeData(data, Snappy, CRC32)
	if err != nil {
		t.Fatalf("SerializeData: %v", err)
	}
	s[len(s)-1] ^= 0x04 // flip a bit in the payload
	if _, err := DeserializeData(s); err == nil {
		t.Errorf("Expected checksum error after corrupting serialized data, got none")
	}
}

func TestSerializeFormatByte(t *testing.T) {
	format := EncodeSerializationFormat(Snappy, CRC32)
	compress, checksum := DecodeSerializationFormat(format)
	if compress != Snappy {
		t.Errorf("Format byte lost compression: got %s", compress)
	}
	if checksum != CRC32 {
		t.Errorf("Format byte lost checksum: got %s", checksum)
	}
}
