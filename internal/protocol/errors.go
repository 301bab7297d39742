package protocol

import (
	"errors"

	"fluxgrid.dev/internal/persistence/snapshot"
	"fluxgrid.dev/internal/sim/grid"
	"fluxgrid.dev/internal/spatial"
)

const (
	// Transport/request validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Engine error taxonomy.
	ErrOutOfBounds     = "E_OUT_OF_BOUNDS"
	ErrConfigInvalid   = "E_CONFIG_INVALID"
	ErrDispatchFailed  = "E_DISPATCH_FAILED"
	ErrSnapshotCorrupt = "E_SNAPSHOT_CORRUPT"
	ErrStale           = "E_STALE"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrOutOfBounds:     {},
	ErrConfigInvalid:   {},
	ErrDispatchFailed:  {},
	ErrSnapshotCorrupt: {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an engine error to its wire code.
func CodeFor(err error) string {
	var de *grid.DispatchError
	switch {
	case errors.Is(err, spatial.ErrOutOfBounds):
		return ErrOutOfBounds
	case errors.Is(err, spatial.ErrConfigInvalid):
		return ErrConfigInvalid
	case errors.Is(err, snapshot.ErrCorrupt):
		return ErrSnapshotCorrupt
	case errors.Is(err, grid.ErrStaleView):
		return ErrStale
	case errors.As(err, &de):
		return ErrDispatchFailed
	default:
		return ErrInternal
	}
}
