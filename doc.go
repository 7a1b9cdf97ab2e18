// Package buildfarm coordinates a fleet of remote build agents: it cleans
// builders between jobs, dispatches queued builds to clean and healthy
// builders and folds the agents' status reports back into the build queue.
//
// End-users typically interact with the coordinator via the Service façade
// exposed by the root package:
//
//	config, _ := buildfarm.LoadConfig(ctx, "buildfarm.yaml")
//	srv, _ := buildfarm.New(ctx, config)
//	defer srv.Close()
//	_ = srv.Start(ctx)
//
// Lower level packages live under service/: agent (the remote agent client),
// pool (shared connection limiter), coordinator (clean, dispatch and update
// of a single builder), scanner (the periodic driver) and registry (builder
// and build queue persistence).
package buildfarm
