package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"

	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"

	// GridEncoding is base64(zstd(varint pairs (block_id, run_len))), x fastest, then y, then z.
	GridEncoding = "RLE_ZSTD_B64"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Encoding selects text JSON frames or binary msgpack frames.
	Encoding string `json:"encoding,omitempty"`
	// EveryTicks thins the frame rate; 1 means every published snapshot.
	EveryTicks int `json:"every_ticks,omitempty"`
	// MaxCells truncates the cell list; the stats still count every cell.
	MaxCells int `json:"max_cells,omitempty"`
	// StatsOnly omits cells and grid entirely.
	StatsOnly bool `json:"stats_only,omitempty"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	Population      int         `json:"population"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	Size        [3]int  `json:"size"`
	Gravity     float64 `json:"gravity"`
	Dissipation float64 `json:"dissipation"`
}

// Server -> Client. One frame per delivered snapshot.
type FrameMsg struct {
	Type            string `json:"type" msgpack:"type"`
	ProtocolVersion string `json:"protocol_version" msgpack:"protocol_version"`
	Tick            uint64 `json:"tick" msgpack:"tick"`

	Stats StatsMsg `json:"stats" msgpack:"stats"`

	Cells     []CellState `json:"cells,omitempty" msgpack:"cells,omitempty"`
	Truncated bool        `json:"truncated,omitempty" msgpack:"truncated,omitempty"`

	GridDigest string `json:"grid_digest" msgpack:"grid_digest"`
	// Grid is sent with the first frame of a session and whenever the digest changes.
	Grid *GridMsg `json:"grid,omitempty" msgpack:"grid,omitempty"`
}

type StatsMsg struct {
	Population int `json:"population" msgpack:"population"`
	Born       int `json:"born" msgpack:"born"`
	Starved    int `json:"starved" msgpack:"starved"`
	Fused      int `json:"fused" msgpack:"fused"`
	Fell       int `json:"fell" msgpack:"fell"`
}

type CellState struct {
	ID      uint64     `json:"id" msgpack:"id"`
	P       [3]float64 `json:"p" msgpack:"p"`
	Epsilon uint8      `json:"eps" msgpack:"eps"`
}

type GridMsg struct {
	Size     [3]int `json:"size" msgpack:"size"`
	Encoding string `json:"encoding" msgpack:"encoding"`
	Data     string `json:"data" msgpack:"data"`
}
