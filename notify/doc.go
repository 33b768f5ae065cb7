// Package notify implements the notification delivery loop: it drains
// notification-shaped outbox rows (type "notification", "email:*", or
// "webhook:*"), performs the legacy single-recipient delivery, then fans
// each event out to the owner's matching channels.
//
// Channel attempts are isolated from one another; the aggregate [Outcome]
// decides the event's terminal status. Only when every attempted channel
// fails is the event marked failed — partial failure and the zero-channel
// case both complete.
package notify
