// Package library stores and builds collections of template pyramids.
//
// A Library is the unit the detector is run against: every pyramid it holds
// is matched against each frame. Libraries are persisted in one of three
// formats, chosen by file extension:
//
//   - ".xml": human-readable, one element per feature
//   - ".l2d": compact little-endian binary, magic "L2DT"
//   - ".msgpack" or ".mp": a single msgpack document
//
// All formats carry the same information and round-trip losslessly,
// including the optional binary object masks.
//
// # Building
//
// Builder turns a batch of template images into pyramids. Images are
// decoded through imaging.ImageCache, optionally binarized and encoded in
// parallel. A template that yields too few features is reported as a
// BuildError and skipped; the rest of the batch still completes.
package library
