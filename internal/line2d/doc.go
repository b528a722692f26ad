// Package line2d implements LINE2D template matching: binary-quantized
// gradient orientations, spread responses in linearized memory and a
// coarse-to-fine pyramid search.
//
// # Pipeline
//
// Templates are encoded once:
//
//	image -> Sobel -> Quantize -> RetainDominant -> scattered features
//
// repeated on every pyramid level. Each query frame is turned into a
// LinearizedPyramid:
//
//	image -> Sobel -> Quantize -> RetainDominant -> Spread(T) -> responses
//
// and the Matcher sums, for each template placement, the response of every
// feature. Scores are normalized to 0..100 where 100 means every feature met
// a pixel with exactly its orientation inside the spreading neighbourhood.
//
// # Orientations
//
// Gradient directions are folded onto [0, 180) and split into
// NumOrientations bins, each stored as one bit of a byte. Spreading ORs the
// bits of a T x T neighbourhood so that small misalignments still score.
// The response of a feature against a spread mask comes from a table built
// at package initialisation: 4 for the same bin, one less per bin of angular
// distance, 0 for orthogonal bins.
//
// # Boundary Policy
//
// A placement whose template rectangle does not lie fully inside the query
// image is skipped, at every level. Templates larger than the frame never
// match.
//
// # Concurrency
//
// Linearized maps and templates are immutable after construction and shared
// freely. Response planes, coarse rows and refinement candidates are split
// across workers, each writing to its own output slice; results are merged
// after all workers finish. Result order is sorted by score, then position.
package line2d
