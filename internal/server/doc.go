// Package server implements the MCP (Model Context Protocol) server for Earth
// Engine tools.
//
// This package provides a JSON-RPC 2.0 server that exposes Google Earth Engine
// through a small set of consolidated tools. Every tool translates its arguments
// into an Earth Engine expression graph and hands it to the REST API; the
// computation itself runs at Google.
//
// # Protocol
//
// HandleMessage processes a single JSON-RPC message and is shared by all
// transports. Run drives it over stdio:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Notifications (methods under notifications/) never produce a response.
//
// # Available Tools
//
//   - earth_engine_data: search, filter, geometry, info, boundaries
//   - earth_engine_process: composite, index, clip, mask, analyze, terrain
//   - earth_engine_export: thumbnail, preview, tiles, export, status
//   - earth_engine_map: create, list, get, delete
//   - earth_engine_system: auth, health, help, cache
//   - crop_classification: random forest classification from labelled points
//   - earth_engine_models: flood_risk, deforestation, wildfire_risk,
//     agriculture, water_quality
//
// # Composites
//
// Images built by one call are kept in a store.Facade under a caller-chosen or
// generated key and referenced by later calls through inputKey. Metadata
// survives restarts when Redis is configured; the live expression handle does
// not, so a key whose handle was lost must be recreated.
//
// # Error Handling
//
// Tool errors map onto JSON-RPC error responses:
//   - -32601: unknown method or tool
//   - -32602: invalid arguments
//   - -32000: the tool failed; data carries the Go error string
//
// Expected failures such as a missing composite are ordinary results with
// "success": false, so the client can react to them.
//
// # Usage
//
//	srv := server.New(server.Options{Facade: facade, EarthEngine: ee})
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
