// Package detection groups overlapping detections into representative
// results, the non-maximum suppression step after template matching.
//
// Clustering is generic over any type that exposes a bounding box and a
// weight, so it serves raw template matches as well as their
// representatives.
//
// # Overlap Rule
//
// Two boxes are near when their intersection-over-union exceeds the
// configured threshold (0.2 by default) or when one box contains the other.
// Nearness is closed transitively: a chain of pairwise-near boxes forms one
// group even if its ends do not overlap.
//
// # Representatives
//
// The representative rule is pluggable. ByArea, the default, picks the
// largest box; ByWeight picks the best score. Remaining ties go to the
// member that came first in the input.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
package detection
