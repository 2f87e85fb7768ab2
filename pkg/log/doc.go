// Package log provides structured protocol logging for mesh commissioning.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events: management messages exchanged over the transport,
// state changes of the admission session, the commissioner, the datasets and
// the key sequence, and protocol errors. It is separate from operational
// logging (slog); protocol capture provides a complete machine-readable
// event trace for debugging and analysis.
//
// # Basic Usage
//
// Components accept a Logger in their configuration:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/meshcop/leader.mclog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .mclog extension.
// The meshcop-log command provides viewing, filtering, export and
// statistics.
package log
