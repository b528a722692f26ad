// Package parallel splits index ranges into disjoint chunks and runs them on a
// bounded number of goroutines.
//
// Each chunk owns an exclusive half-open range [lo, hi), so workers can write
// to their own slice of a shared output buffer without locks. Results become
// visible to the caller only after For returns.
package parallel
