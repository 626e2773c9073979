package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"bonsai.sim/internal/sim/voxel"
)

// AppendRLE appends blocks as varint pairs (block_id, run_len) to dst.
func AppendRLE(dst []byte, blocks []voxel.Block) []byte {
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(blocks) {
		b := blocks[i]
		run := 1
		for j := i + 1; j < len(blocks) && blocks[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		dst = append(dst, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		dst = append(dst, tmp[:n]...)

		i += run
	}
	return dst
}

// DecodeRLEBytes expands varint pairs. limit bounds the output length; a stream that would
// expand beyond it is rejected.
func DecodeRLEBytes(raw []byte, limit int) ([]voxel.Block, error) {
	var out []voxel.Block
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > uint64(voxel.Air) {
			return nil, fmt.Errorf("block id out of range: %d", b)
		}
		if run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("run of %d exceeds limit %d", run, limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, voxel.Block(b))
		}
	}
	return out, nil
}

// EncodeRLE encodes blocks into base64(varint pairs).
func EncodeRLE(blocks []voxel.Block) string {
	return base64.StdEncoding.EncodeToString(AppendRLE(nil, blocks))
}

func DecodeRLE(b64 string, limit int) ([]voxel.Block, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return DecodeRLEBytes(raw, limit)
}

// PackGrid is the wire form of a whole grid: base64(zstd(rle)).
func PackGrid(g *voxel.Grid) (string, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return "", err
	}
	defer enc.Close()
	packed := enc.EncodeAll(AppendRLE(nil, g.Blocks), nil)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// UnpackGrid reverses PackGrid for a grid of the given size.
func UnpackGrid(size voxel.Vec3i, s string) (*voxel.Grid, error) {
	packed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("grid payload: %w", err)
	}
	blocks, err := DecodeRLEBytes(raw, size.X*size.Y*size.Z)
	if err != nil {
		return nil, fmt.Errorf("grid payload: %w", err)
	}
	return voxel.FromBlocks(size, blocks)
}
