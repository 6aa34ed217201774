// Package events defines the listener lifecycle notifications published on
// the lifecycle bus.
//
// Available event types:
//   - Subscribed: a listener attached to its source
//   - SubscribeFailed: resolving or invoking the attach accessor failed
//   - Dispatched: a firing was forwarded to the consumer handler
//   - Detached: a listener detached, explicitly or because its target died
package events
