// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"context"
	"runtime"
	"sync"

	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// Options tune an engine operation. The zero value is valid: serial
// derivation.
type Options struct {
	// DeriveWorkers bounds the number of goroutines deriving leaf
	// keys concurrently. Leaf derivations are CPU-bound (Argon2id is
	// deliberately expensive) and independent of each other until a
	// parent combine step, so fanning them out helps policies with
	// many slow leaves. Zero or one means serial; values above the
	// CPU count are clamped.
	DeriveWorkers int
}

func (o Options) workers(jobCount int) int {
	workers := o.DeriveWorkers
	if workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}
	if workers > jobCount {
		workers = jobCount
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// leafDerivation is one pending leaf key computation. The secret is
// borrowed from the caller's map and never closed here.
type leafDerivation struct {
	factor factor.Factor
	secret *secret.Buffer
	params []byte
}

// deriveLeafKeys computes every leaf key, fanning out across a bounded
// worker pool when workers > 1. The returned keys and errors are
// index-aligned with jobs: a job either yields a key or an error,
// never both. On context cancellation all partial keys are wiped and
// only the context error is returned — aborted work is discarded, not
// cached.
func deriveLeafKeys(ctx context.Context, jobs []leafDerivation, workers int) ([]*secret.Buffer, []error, error) {
	keys := make([]*secret.Buffer, len(jobs))
	errs := make([]error, len(jobs))

	if workers <= 1 {
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				closeAll(keys)
				return nil, nil, err
			}
			keys[i], errs[i] = job.factor.Derive(job.secret, job.params)
		}
		return keys, errs, nil
	}

	indexes := make(chan int)
	var group sync.WaitGroup
	for n := 0; n < workers; n++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				keys[i], errs[i] = jobs[i].factor.Derive(jobs[i].secret, jobs[i].params)
			}
		}()
	}
	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	group.Wait()

	if err := ctx.Err(); err != nil {
		closeAll(keys)
		return nil, nil, err
	}
	return keys, errs, nil
}

// closeAll closes every non-nil buffer in the slice.
func closeAll(buffers []*secret.Buffer) {
	for _, buffer := range buffers {
		if buffer != nil {
			buffer.Close()
		}
	}
}
