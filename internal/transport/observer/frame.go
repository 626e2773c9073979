package observer

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/sim/encoding"
	"bonsai.sim/internal/sim/world"
)

// FrameFromSnapshot converts a snapshot into the wire frame without the grid payload.
func FrameFromSnapshot(s world.Snapshot, maxCells int, statsOnly bool) observerproto.FrameMsg {
	f := observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Tick:            s.Stats.Tick,
		Stats: observerproto.StatsMsg{
			Population: s.Stats.Population,
			Born:       s.Stats.Born,
			Starved:    s.Stats.Starved,
			Fused:      s.Stats.Fused,
			Fell:       s.Stats.Fell,
		},
		GridDigest: hex.EncodeToString(s.GridDigest[:]),
	}
	if statsOnly {
		return f
	}
	cells := s.Cells
	if maxCells > 0 && len(cells) > maxCells {
		cells = cells[:maxCells]
		f.Truncated = true
	}
	f.Cells = make([]observerproto.CellState, len(cells))
	for i, c := range cells {
		f.Cells[i] = observerproto.CellState{ID: c.ID, P: [3]float64{c.P[0], c.P[1], c.P[2]}, Epsilon: c.Epsilon}
	}
	return f
}

// Marshal encodes a frame in the session's encoding.
func Marshal(f observerproto.FrameMsg, enc string) ([]byte, error) {
	if enc == observerproto.EncodingMsgpack {
		return msgpack.Marshal(&f)
	}
	return json.Marshal(f)
}

// Unmarshal is the client-side counterpart of Marshal.
func Unmarshal(b []byte, enc string) (observerproto.FrameMsg, error) {
	var f observerproto.FrameMsg
	var err error
	if enc == observerproto.EncodingMsgpack {
		err = msgpack.Unmarshal(b, &f)
	} else {
		err = json.Unmarshal(b, &f)
	}
	return f, err
}

// gridCache packs a grid once per digest.
type gridCache struct {
	mu     sync.Mutex
	digest [32]byte
	msg    *observerproto.GridMsg
}

func (c *gridCache) get(s world.Snapshot) (*observerproto.GridMsg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msg != nil && c.digest == s.GridDigest {
		return c.msg, nil
	}
	data, err := encoding.PackGrid(s.Grid)
	if err != nil {
		return nil, err
	}
	c.digest = s.GridDigest
	c.msg = &observerproto.GridMsg{
		Size:     [3]int{s.Size.X, s.Size.Y, s.Size.Z},
		Encoding: observerproto.GridEncoding,
		Data:     data,
	}
	return c.msg, nil
}
