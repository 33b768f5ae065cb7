package audit

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionEventEnqueued    = "outbox.enqueued"
	ActionEventClaimed     = "outbox.claimed"
	ActionEventCompleted   = "outbox.completed"
	ActionEventFailed      = "outbox.failed"
	ActionEventRetrying    = "outbox.retrying"
	ActionChannelDelivered = "channel.delivered"
	ActionChannelFailed    = "channel.failed"
)

// Audit event categories group related actions.
const (
	CategoryOutbox   = "relay.outbox"
	CategoryDelivery = "relay.delivery"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceEvent   = "outbox_event"
	ResourceChannel = "channel"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionEventEnqueued,
		ActionEventClaimed,
		ActionEventCompleted,
		ActionEventFailed,
		ActionEventRetrying,
		ActionChannelDelivered,
		ActionChannelFailed,
	}
}
