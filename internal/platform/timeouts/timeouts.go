// Package timeouts defines shared durations used across the studio
// processes so the web server, the CLI and the preloader agree on them.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// BackendRequest caps one round trip to the hosted backend.
const BackendRequest = 10 * time.Second

// MediaUpstream caps one media fetch performed on a cache miss.
const MediaUpstream = 20 * time.Second

// PreloadAssetSoft is the budget after which a pending asset load is
// counted as loaded.
const PreloadAssetSoft = 5 * time.Second

// PreloadHardCeiling forces a preload session to 100% regardless of load state.
const PreloadHardCeiling = 12 * time.Second

// PreloadExitDelay separates the "ready" frame from overlay dismissal.
const PreloadExitDelay = 800 * time.Millisecond

// PreloadPoll is the progress recomputation interval.
const PreloadPoll = 50 * time.Millisecond
