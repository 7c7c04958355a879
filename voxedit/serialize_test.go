package voxedit

import (
	"bytes"
	"testing"
)

func TestSerializationFormat(t *testing.T) {
	for _, compress := range []Compression{Uncompressed, Snappy} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			format := EncodeSerializationFormat(compress, checksum)
			gotCompress, gotChecksum := DecodeSerializationFormat(format)
			if gotCompress != compress || gotChecksum != checksum {
				t.Errorf("Format round trip failed: sent (%s, %s), got (%s, %s)\n",
					compress, checksum, gotCompress, gotChecksum)
			}
		}
	}
}

func TestSerializeDataRoundTrip(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 7)
	}
	for _, compress := range []Compression{Uncompressed, Snappy} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			s, err := SerializeData(data, compress, checksum)
			if err != nil {
				t.Fatalf("Error on SerializeData(%s, %s): %v\n", compress, checksum, err)
			}
			got, gotCompress, err := DeserializeData(s, true)
			if err != nil {
				t.Fatalf("Error on DeserializeData(%s, %s): %v\n", compress, checksum, err)
			}
			if gotCompress != compress {
				t.Errorf("Expected compression %s, got %s\n", compress, gotCompress)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Data round trip failed for (%s, %s)\n", compress, checksum)
			}
		}
	}
}

func TestSerializeDataCorruption(t *testing.T) {
	data := []byte("highly important voxel bytes that must not rot")
	s, err := SerializeData(data, Snappy, CRC32)
	if err != nil {
		t.Fatalf("Error on SerializeData: %v\n", err)
	}
	s[len(s)-1] ^= 0xff
	if _, _, err := DeserializeData(s, true); err == nil {
		t.Errorf("Expected checksum failure on corrupted data, got none\n")
	}
}

func TestSerializeObject(t *testing.T) {
	type payload struct {
		Name   string
		Size   Point3d
		Center Vector3d
	}
	sent := payload{"soma", Point3d{512, 512, 64}, Vector3d{255.5, 300.25, 31.75}}
	s, err := Serialize(sent, Snappy, CRC32)
	if err != nil {
		t.Fatalf("Error on Serialize: %v\n", err)
	}
	var got payload
	if err := Deserialize(s, &got); err != nil {
		t.Fatalf("Error on Deserialize: %v\n", err)
	}
	if got != sent {
		t.Errorf("Object round trip failed: sent %+v, got %+v\n", sent, got)
	}
}
