// Package audit is a relay extension that bridges lifecycle events to an
// immutable audit trail backend.
//
// Every outbox and channel lifecycle hook emits a structured audit event
// through the [Recorder] interface. The extension assigns severity levels
// (info for normal operations, warning for retries, critical for terminal
// failures) and rich metadata (event type, attempts, channel type, errors).
//
// # Usage
//
//	ext := audit.New(audit.RecorderFunc(func(ctx context.Context, evt *audit.Event) error {
//	    return trail.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//
//	eng, err := engine.New(st, engine.WithExtension(ext))
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionEventFailed,
//	        audit.ActionChannelFailed,
//	    ),
//	)
package audit
