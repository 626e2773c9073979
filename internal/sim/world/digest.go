package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// StateDigest hashes everything that influences future ticks. Two worlds with equal digests
// evolve identically.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}

	put(w.tick.Load())
	put(w.ids.Next())
	d := w.grid.Digest()
	h.Write(d[:])

	put(uint64(len(w.cells)))
	for i := range w.cells {
		c := &w.cells[i]
		put(c.ID)
		for a := 0; a < 3; a++ {
			put(math.Float64bits(c.P[a]))
			put(math.Float64bits(c.DP[a]))
		}
		put(uint64(int64(c.PI.X)))
		put(uint64(int64(c.PI.Y)))
		put(uint64(int64(c.PI.Z)))
		h.Write(c.Program[:])
		h.Write(c.Regs[:])
		h.Write([]byte{c.IP, c.Epsilon, c.Decay, boolByte(c.Ext), boolByte(c.Result)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
