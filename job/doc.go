// Package job implements the generic background-job loop over the
// outbox: a closed set of job kinds, typed handler definitions, and the
// dispatcher that drains job-typed outbox events.
//
// # Kinds
//
// Job kinds are a closed enum ([Kind]); the claim query filters by the
// registered kinds, so an event with an unknown type is never claimed and
// stays pending for whichever consumer understands it. This replaces
// string-keyed dispatch with compiler-checked exhaustiveness.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and deserialized before the handler runs:
//
//	var EnrichIntegration = job.NewDefinition(job.KindEnrichment,
//	    func(ctx context.Context, input EnrichInput) error {
//	        return enricher.Run(ctx, input.ProjectID)
//	    },
//	)
//	job.RegisterDefinition(registry, EnrichIntegration)
//
// # Dispatch loop
//
// [Dispatcher.RunOnce] claims a bounded batch of due job events, runs
// them sequentially through the middleware chain, and records the
// outcome: completed on success, or returned to pending with a fixed
// retry delay on failure. A failure in one event never aborts the batch.
package job
