// Package notifier is the async delivery pipeline for outgoing chat messages.
//
// Notify validates and enqueues; a worker pool drains the queue through a
// token-bucket rate limiter and hands each message to the chat adapter.
// Optional features: a dedup window that drops identical messages to the same
// chat (persisted through a DedupStore when enabled) and bounded retries with
// exponential backoff. Recipients that blocked the bot are never retried.
package notifier
