// Package engine wires all relay subsystems together and provides the
// primary application-level API for registering and enqueuing work.
//
// The engine package exists to break a fundamental import cycle: the root
// relay package defines Entity and Config (imported by outbox, channel,
// job, etc.) and therefore cannot import those packages back. Engine sits
// above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	st := memory.New()
//
//	eng, err := engine.New(st,
//	    engine.WithConfig(relay.Config{NotifyBatchSize: 50}),
//	    engine.WithEmailSender(emailAPI),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	)
//
// # Registering Jobs
//
//	def := job.NewDefinition(job.KindScoring, func(ctx context.Context, in ScoringInput) error {
//	    return scorer.Run(ctx, in)
//	})
//	engine.Register(eng, def)
//
// # Enqueuing Work
//
//	// Background jobs
//	engine.EnqueueJob(ctx, eng, job.KindScoring, ScoringInput{SiteID: siteID})
//
//	// Notifications
//	eng.EnqueueEmail(ctx, outbox.EmailNotification{
//	    UserID:    userID,
//	    EventType: "crawl_completed",
//	    To:        "user@example.com",
//	    Data:      map[string]any{"pages": 42},
//	})
//
// # Options
//
//   - [WithConfig] — loop batch sizes, delays, and timeouts
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to both dispatch loops
//   - [WithBackoff] — set the job-loop retry delay strategy
//   - [WithEmailSender], [WithWebhookSender], [WithSlackSender] — delivery transports
//   - [WithPlanResolver] — plan lookup for the channel registry
//   - [WithTracerProvider], [WithMeterProvider] — OpenTelemetry providers
package engine
