package redis

// Redis key naming conventions for relay data.
// All keys are prefixed with "relay:" to avoid collisions.

const keyPrefix = "relay:"

// eventKey returns the Hash key for an event: relay:event:{id}
func eventKey(id string) string { return keyPrefix + "event:" + id }

// eventIDsKey is the Set tracking all event IDs for enumeration.
const eventIDsKey = keyPrefix + "event_ids"

// dueKey is the Sorted Set of pending event IDs scored by AvailableAt
// (unix milliseconds). Claiming pops from here; only pending events are
// members.
const dueKey = keyPrefix + "due"

// channelKey returns the Hash key for a channel: relay:channel:{id}
func channelKey(id string) string { return keyPrefix + "channel:" + id }

// userChannelsKey is the Set of channel IDs owned by a user:
// relay:user_channels:{userID}
func userChannelsKey(userID string) string { return keyPrefix + "user_channels:" + userID }
