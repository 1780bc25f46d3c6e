// Package resilience provides a three-state circuit breaker used to
// guard outbound dependencies.
//
// Closed passes calls through and counts failures; Open rejects calls
// until a timeout elapses; Half-Open admits a bounded number of probes
// and closes again once enough of them succeed.
package resilience
