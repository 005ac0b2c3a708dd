// Package server implements the MCP (Model Context Protocol) server for parking
// lot occupancy.
//
// This package provides a JSON-RPC 2.0 server that exposes a running occupancy
// monitor through the MCP protocol, so an MCP client can ask which spots are
// free, feed it frames and fetch annotated snapshots.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Lot State:
//   - parking_status: Monitor and run summary
//   - parking_spots: Every spot with geometry and status
//   - parking_spot: One spot by index
//   - parking_statistics: Total, available, occupied, unknown and rate
//
// Frames:
//   - parking_submit_frame: Push an image file through the engine
//   - parking_annotated_frame: Latest frame with spot boxes and banner
//   - parking_extract_spots: Dry-run spot extraction on a mask
//
// History (requires a database):
//   - parking_spot_history: Status rows for one spot
//   - parking_statistics_history: Statistics snapshots
//
// # Frame Sources
//
// Frames reach the engine either from the monitor's own loop (a video file or an
// image directory, started by the caller) or through parking_submit_frame. Both
// paths share the monitor lock, so frame numbers stay strictly increasing.
// Images submitted by path go through an in-memory cache that reloads a file when
// it is rewritten in place.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(mon, log)
//	if err := srv.Run(); err != nil {
//	    log.Errorf("server: %v", err)
//	}
package server
