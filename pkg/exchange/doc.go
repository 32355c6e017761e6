// Package exchange carries JSON batches of task requests to the task manager
// and returns the JSON value it answers with. Batches are opaque on the way:
// fields the exchange has no use for reach the peer untouched. Request and
// Result are typed views for callers that build or read batches.
//
// A master node speaks to the task manager over its local Unix socket. A
// worker node wraps the same batch in a sendsync envelope and relays it to
// the master through the cluster. Router picks between the two on every call
// from the node's current role. Each call is a single attempt: a failed call
// returns a nil batch and an error whose cause is ErrConnect, ErrTransport or
// ErrProtocol, and callers own any retry.
//
// No check is made that the result batch matches the request batch in length
// or order. Callers reconcile results by agent.
package exchange
