// Package api exposes the reminder engine over HTTP. Handlers decode and
// bound requests, call the step and check-in services, and map their errors
// to status codes with safe messages: 404 for unknown or foreign resources,
// 409 for occurrences already resolved, 503 when the store stayed
// unreachable through the retry budget.
//
// Every /api route requires a bearer JWT whose subject is the patient the
// route names. Submitting a note result also requires the notes:write scope.
package api
