package datasource

import "errors"

var (
	// ErrFetchFailure wraps any provider failure: network, non-2xx status,
	// malformed payload or timeout.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrEmptyUpstream is returned in refresh mode when the provider answered
	// with no usable bars. Refresh never synthesizes data.
	ErrEmptyUpstream = errors.New("upstream returned no data")

	// ErrSyntheticAborted is returned when no synthetic series can be built
	// for a degenerate window.
	ErrSyntheticAborted = errors.New("synthetic generation aborted")
)
