// Package slate implements a self-describing state encoding for smart
// contract ledgers and a small stack-based interpreter that reads and
// mutates that state while producing an auditable execution transcript.
//
// The core is split in layers. The wire and descriptor packages define an
// alignment-tagged binary format and the typed codecs over it. The state
// package models contract storage as a tree of tagged values. The vm
// package executes instruction sequences against that tree and records
// every operation into a transcript suitable for later proof generation.
// The bboard contract exercises the whole stack.
package slate

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.DebugLevel)

// PromCollectors exposes the prometheus collectors declared by the
// packages. The caller is free to register them to its own registry.
var PromCollectors []prometheus.Collector
