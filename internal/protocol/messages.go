// Package protocol defines the observer wire messages: the JSON frames a
// consumer exchanges with the engine's observer server.
package protocol

// Version is the observer protocol version.
const Version = "1.0"

const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypePublish    = "PUBLISH"
	TypeQueryChunk = "QUERY_CHUNK"
	TypeChunk      = "CHUNK"
	TypeError      = "ERROR"
)

// HelloMsg opens an observer session.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// EngineParams describes the engine's fixed geometry to consumers.
type EngineParams struct {
	Dims       int    `json:"dims"`
	AxisBits   int    `json:"axis_bits"`
	ChunkEdge  int    `json:"chunk_edge"`
	Stride     int    `json:"stride"`
	Program    string `json:"program"`
	TickRateHz int    `json:"tick_rate_hz,omitempty"`
}

// WelcomeMsg answers a HELLO.
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Generation      uint64       `json:"generation"`
	Engine          EngineParams `json:"engine"`
}

// PublishMsg announces a committed generation. Sent once per publication to
// every session.
type PublishMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Generation      uint64 `json:"generation"`
	Tick            uint64 `json:"tick"`
	ActiveChunks    int    `json:"active_chunks"`
	Batches         int    `json:"batches"`
}

// QueryChunkMsg requests one chunk's published cells.
type QueryChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Key             uint64 `json:"key"`
}

// ChunkMsg carries one chunk's published cells.
type ChunkMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Key             uint64    `json:"key"`
	Generation      uint64    `json:"generation"`
	Cells           []float32 `json:"cells"`
}

// ErrorMsg reports a request failure without closing the session.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
