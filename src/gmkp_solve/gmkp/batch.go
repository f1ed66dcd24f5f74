package gmkp

import (
	"context"
	"runtime"
)

type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// SolveBatch dives on every instance concurrently, at most parallel at a
// time (GOMAXPROCS when parallel <= 0). Each dive opens its own session of
// engine. Results keep the order of instances.
func SolveBatch(ctx context.Context, engine Engine, instances []*Instance, opts DivingOptions, parallel int) []BatchResult {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	results := make([]BatchResult, len(instances))
	resultsCh := make(chan BatchResult, len(instances))
	slots := make(chan struct{}, parallel)

	for idx, inst := range instances {
		go func() {
			slots <- struct{}{}
			defer func() { <-slots }()
			res, err := inst.SolveDiving(ctx, engine, opts)
			resultsCh <- BatchResult{Index: idx, Result: res, Err: err}
		}()
	}

	for range instances {
		r := <-resultsCh
		results[r.Index] = r
	}
	return results
}
