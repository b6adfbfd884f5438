// Package task runs background work off the request and dispatch paths. The
// dispatcher emits events; TaskFactoryEventHandler turns the ones that need
// work into tasks on a bounded TaskQueue, and a WorkerPool executes them.
//
// Tasks are not persisted. A task lost to a full queue or a restart is
// recovered by the next dispatch tick, which re-evaluates every occurrence
// from the store.
package task
