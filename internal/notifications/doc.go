// Package notifications delivers push notifications about plan outcomes
// via ntfy. The service degrades to a noop when no topic is configured,
// and error notifications are rate limited so bursts of worker failures
// do not flood the topic.
package notifications
