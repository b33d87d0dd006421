// Package testutil provides testing utilities for datastore.
//
// This package is intended for use in tests and benchmarks only.
// It generates reproducible workloads of allocations, retirements and
// commits against a store.
//
// # Random Workloads
//
//	rng := testutil.NewRNG(seed)
//	for _, op := range rng.Workload(10000, testutil.DefaultMix) {
//	    switch op.Kind {
//	    case testutil.OpAllocate:
//	        // allocate op.Value
//	    case testutil.OpHold:
//	        // retire the live entry at index op.Target
//	    case testutil.OpCommit:
//	        // end the generation
//	    }
//	}
//
// Hold targets are Zipf-distributed over the live entries, so recent
// entries die young as they do in real indexes.
package testutil
