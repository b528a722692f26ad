// Package server implements the MCP (Model Context Protocol) server for
// template detection.
//
// This package provides a JSON-RPC 2.0 server that exposes the LINE2D
// template matcher through the MCP protocol, so MCP clients can build
// template libraries and locate objects in images.
//
// # Protocol
//
// Requests arrive on stdin as newline-delimited JSON-RPC 2.0 and each
// response is written to stdout as one line. stderr carries the log.
//
// Methods: initialize, tools/list, tools/call and ping. Malformed lines
// get a parse error response; notifications get no response.
//
// # Available Tools
//
// Template Library:
//   - templates_build: Encode template images into the active library
//   - templates_load: Load a .xml, .l2d or .msgpack library file
//   - templates_save: Save the active library
//   - templates_list: Describe the active library
//
// Detection:
//   - image_detect: Grouped detections of every active template
//   - image_render_detections: Detections drawn over the image
//   - image_orientations: Quantized gradient orientations as an image
//
// Images:
//   - image_load: Size, format and color model of an image file
//
// # State
//
// The server keeps an image cache keyed by path and one active template
// library. Both live for the lifetime of the process. Detection settings
// come from the config.Config given to New; threshold and group size can be
// overridden per call.
//
// # Error Handling
//
// A tool that fails answers with code -32000, a short message and the Go
// error text as data. Unknown methods and bad arguments use the standard
// JSON-RPC codes.
//
// A failing call never stops the server; the next request is served
// normally.
package server
