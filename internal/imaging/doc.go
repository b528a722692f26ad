// Package imaging provides the image-side collaborators of the matcher.
//
// The matcher itself only understands Gray, a strided view over 8-bit
// intensity samples. This package converts decoded images into that view,
// builds pyramid levels, extracts Sobel gradients and renders debug overlays.
// All coordinates use the image convention: (0,0) is the top-left corner, X
// increases rightward and Y increases downward.
//
// # Strided Views
//
// Gray never assumes that a row is exactly Width bytes long. Buffers handed in
// by a capture pipeline often carry row padding, so every accessor goes
// through Stride. Conversions from *image.Gray are zero-copy and keep the
// source stride.
//
// # Pyramids
//
// PyrDown reduces by an integer ratio with box filtering. Templates and query
// frames must use the same ratio so that level l of a template lines up with
// level l of the frame.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Gray values share their
// pixel slice; concurrent readers are fine, but callers that mutate a view
// must not share it.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Non-positive dimensions or a stride smaller than the width
//   - Pixel buffers too short for the declared geometry
//   - Pyramid ratios below 2 or images too small to reduce further
//   - File I/O and decoding errors during loading
package imaging
