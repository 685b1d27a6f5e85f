// Package queuemonitor implements an agent that periodically collects queue
// depth metrics from Azure Storage accounts and Service Bus namespaces.
//
// Every poll cycle visits the configured accounts in order and reports:
//   - the approximate message count of every storage queue
//   - the active and dead-letter counts of every Service Bus queue
//   - the active and dead-letter counts of every topic subscription
//
// Metrics are named hierarchically, for example
// "servicebus/<namespace>/topic/<topic>/subscription/<name>/DeadLetter", and
// are grouped by component, one per system name and account kind.
//
// Features:
//   - Non-overlapping poll cycles with bounded parallel queue fetches
//   - Per-account error isolation, a failing account never stops a cycle
//   - An HTTP sink that posts gzip compressed, optionally HMAC signed batches
//   - An optional PostgreSQL sink that keeps the latest value of every metric
//   - A status API with the latest values, health and prometheus self metrics
//   - Audit of every cycle to a file or HTTP endpoint
//   - Graceful shutdown that waits for the running cycle
//   - Structured logging
//
// The agent is configured through command-line flags and environment
// variables, accounts are read from a JSON or YAML file.
package queuemonitor
