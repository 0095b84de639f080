// Package work implements the in-process deferred-job facility.
//
// Work types are registered once on a Registry. Callers enqueue items of a
// type with an arbitrary payload and receive the item id immediately; a
// bounded pool of workers executes items, each under its own timeout.
// Failed items are re-queued up to the type's MaxRetries. Every terminal
// result is recorded on the CompletionTracker, which fans it out to
// listeners.
//
// Stop cancels the context handed to running items and marks items that
// never started as cancelled.
package work
