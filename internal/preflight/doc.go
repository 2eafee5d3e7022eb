// Package preflight is the pubrag validation suite. It checks the runtime,
// the workspace files, the live Neo4j graph, the index directory and the
// embedding server before indexing.
//
// Checks are grouped (env, files, graph, system, embedder) and independent:
// a failing check never stops the next one. Required checks that fail are
// critical; everything else is reported as a warning.
//
//	checker := preflight.New(preflight.WithRoot(root))
//	results := checker.RunAll(ctx)
//	checker.PrintResults(results)
//	if checker.HasCriticalFailures(results) {
//	    // exit non-zero
//	}
package preflight
