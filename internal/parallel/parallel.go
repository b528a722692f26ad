package parallel

import (
	"runtime"
	"sync"
)

// Range is a half-open interval [Lo, Hi) of work items.
type Range struct {
	Lo, Hi int
}

// Len returns the number of items in the range.
func (r Range) Len() int { return r.Hi - r.Lo }

// Workers resolves a requested worker count. Values <= 0 mean one worker per
// CPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Chunks splits [0, n) into at most workers contiguous ranges of nearly equal
// size. The first n%k ranges are one item longer. Empty ranges are never
// returned, so n == 0 yields no chunks.
func Chunks(n, workers int) []Range {
	if n <= 0 {
		return nil
	}
	k := Workers(workers)
	if k > n {
		k = n
	}

	out := make([]Range, 0, k)
	size, extra := n/k, n%k
	lo := 0
	for i := 0; i < k; i++ {
		hi := lo + size
		if i < extra {
			hi++
		}
		out = append(out, Range{Lo: lo, Hi: hi})
		lo = hi
	}
	return out
}

// For runs fn once per chunk of [0, n) and waits for all of them.
//
// fn receives the chunk index and its range. A single chunk runs on the
// calling goroutine. Concurrency is bounded by a semaphore sized to the
// resolved worker count.
func For(n, workers int, fn func(chunk int, r Range)) {
	chunks := Chunks(n, workers)
	if len(chunks) == 1 {
		fn(0, chunks[0])
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, Workers(workers))
	for i, r := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, r Range) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i, r)
		}(i, r)
	}
	wg.Wait()
}

// Each runs fn for every index in [0, n), one index per task, with at most
// workers tasks in flight. It suits small numbers of coarse tasks such as one
// orientation plane or one template per call.
func Each(n, workers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if Workers(workers) == 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, Workers(workers))
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
