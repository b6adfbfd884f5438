// Package events provides the in-process event bus of the reminder engine.
//
// Services emit events after their transaction commits and never learn who
// consumes them. The primary components are:
//   - Event: a typed envelope with a JSON payload
//   - EventHandler / EventEmitter: the consumer and producer interfaces
//   - InMemoryEventEmitter: synchronous fan-out to registered handlers
//   - AuditLogHandler: writes every event to the structured log
package events
