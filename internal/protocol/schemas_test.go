package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"fluxgrid.dev/internal/persistence/snapshot"
	"fluxgrid.dev/internal/sim/grid"
	"fluxgrid.dev/internal/spatial"
)

func compile(t *testing.T, name, schema string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.CompileString(name, schema)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validate(t *testing.T, s *jsonschema.Schema, msg any) error {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return s.Validate(doc)
}

func TestSchemas_AcceptProducedMessages(t *testing.T) {
	params := EngineParams{
		Dims: 2, AxisBits: 16, ChunkEdge: 8, Stride: 1,
		Program: "DIFFUSE", TickRateHz: 30,
	}

	cases := []struct {
		name   string
		schema string
		msg    any
	}{
		{"hello", HelloSchema, HelloMsg{Type: TypeHello, ProtocolVersion: Version, ClientName: "viewer"}},
		{"hello minimal", HelloSchema, HelloMsg{Type: TypeHello, ProtocolVersion: Version}},
		{"welcome", WelcomeSchema, WelcomeMsg{
			Type: TypeWelcome, ProtocolVersion: Version,
			SessionID: "s-1", Generation: 42, Engine: params,
		}},
		{"publish", PublishSchema, PublishMsg{
			Type: TypePublish, ProtocolVersion: Version,
			Generation: 1, Tick: 1, ActiveChunks: 3, Batches: 1,
		}},
		{"chunk", ChunkSchema, ChunkMsg{
			Type: TypeChunk, ProtocolVersion: Version,
			Key: 9, Generation: 1, Cells: []float32{0, 1.5, -2},
		}},
		{"error", ErrorSchema, ErrorMsg{
			Type: TypeError, ProtocolVersion: Version,
			Code: ErrOutOfBounds, Message: "coordinate outside domain",
		}},
	}
	for _, tc := range cases {
		if err := validate(t, compile(t, tc.name+".json", tc.schema), tc.msg); err != nil {
			t.Fatalf("%s: produced message rejected: %v", tc.name, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	hello := compile(t, "hello.json", HelloSchema)
	errSchema := compile(t, "error.json", ErrorSchema)

	cases := []struct {
		name   string
		schema *jsonschema.Schema
		doc    string
	}{
		{"wrong type const", hello, `{"type":"GOODBYE","protocol_version":"1.0"}`},
		{"missing version", hello, `{"type":"HELLO"}`},
		{"extra field", hello, `{"type":"HELLO","protocol_version":"1.0","nonce":1}`},
		{"bad code shape", errSchema, `{"type":"ERROR","protocol_version":"1.0","code":"oops"}`},
	}
	for _, tc := range cases {
		var doc any
		if err := json.Unmarshal([]byte(tc.doc), &doc); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if err := tc.schema.Validate(doc); err == nil {
			t.Fatalf("%s: malformed message accepted", tc.name)
		}
	}
}

func TestErrorCodes_Known(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest, ErrOutOfBounds, ErrConfigInvalid,
		ErrDispatchFailed, ErrSnapshotCorrupt, ErrStale, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("code %q not known", code)
		}
	}
	if IsKnownCode("E_MADE_UP") {
		t.Fatalf("unknown code accepted")
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{spatial.ErrOutOfBounds, ErrOutOfBounds},
		{fmt.Errorf("wrap: %w", spatial.ErrOutOfBounds), ErrOutOfBounds},
		{spatial.ErrConfigInvalid, ErrConfigInvalid},
		{snapshot.ErrCorrupt, ErrSnapshotCorrupt},
		{grid.ErrStaleView, ErrStale},
		{&grid.DispatchError{Tick: 3, Keys: []uint64{1}, Err: errors.New("device lost")}, ErrDispatchFailed},
		{errors.New("anything else"), ErrInternal},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.err); got != tc.want {
			t.Fatalf("CodeFor(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
