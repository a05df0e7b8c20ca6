package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/roach88/evtrack/internal/codec"
)

var batchMagic = [4]byte{'E', 'V', 'B', '1'}

// headerSize is magic + compression + length + checksum.
const headerSize = 4 + 1 + 4 + 32

// maxPayloadSize bounds the allocation made for a corrupt length field.
const maxPayloadSize = 256 << 20

// batchPayload is the CBOR body of a batch blob.
type batchPayload struct {
	Index  int      `cbor:"index"`
	Events [][]byte `cbor:"events"`
}

// manifest is the CBOR body of the manifest blob.
type manifest struct {
	Index int `cbor:"index"`
}

// encodeBatch serializes the events of one batch into a blob.
func encodeBatch(index int, events [][]byte, c Compression) ([]byte, error) {
	payload, err := codec.Marshal(batchPayload{Index: index, Events: events})
	if err != nil {
		return nil, fmt.Errorf("encode batch %d: %w", index, err)
	}

	body, tag, err := compress(payload, c)
	if err != nil {
		return nil, fmt.Errorf("encode batch %d: %w", index, err)
	}

	sum := blake3.Sum256(payload)

	buf := make([]byte, 0, headerSize+len(body))
	buf = append(buf, batchMagic[:]...)
	buf = append(buf, byte(tag))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, sum[:]...)
	buf = append(buf, body...)
	return buf, nil
}

// decodeBatch verifies a blob and returns its serialized events.
// wantIndex guards against a blob stored under the wrong address.
func decodeBatch(data []byte, wantIndex int) ([][]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("batch blob truncated: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], batchMagic[:]) {
		return nil, fmt.Errorf("batch blob has bad magic %q", data[:4])
	}

	tag := Compression(data[4])
	size := int(binary.BigEndian.Uint32(data[5:9]))
	if size > maxPayloadSize {
		return nil, fmt.Errorf("batch blob declares %d byte payload", size)
	}
	var want [32]byte
	copy(want[:], data[9:headerSize])

	payload, err := decompress(data[headerSize:], tag, size)
	if err != nil {
		return nil, err
	}
	if blake3.Sum256(payload) != want {
		return nil, fmt.Errorf("batch blob checksum mismatch")
	}

	var p batchPayload
	if err := codec.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode batch payload: %w", err)
	}
	if p.Index != wantIndex {
		return nil, fmt.Errorf("batch blob holds index %d, expected %d", p.Index, wantIndex)
	}
	return p.Events, nil
}

func encodeManifest(index int) ([]byte, error) {
	return codec.Marshal(manifest{Index: index})
}

func decodeManifest(data []byte) (int, error) {
	var m manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Index < 0 {
		return 0, fmt.Errorf("manifest holds negative index %d", m.Index)
	}
	return m.Index, nil
}
