// Package registry tracks the in-flight upgrade task of every agent.
//
// Each operation on a Registry is atomic, but no operation spans another: a
// caller that reads a task and later writes it back races with any other
// caller writing the same agent. Only one owner is expected to drive a given
// agent's task at a time.
//
// Iteration walks agents in ascending id order and takes the registry lock for
// each step only, so entries added or removed during a walk may or may not be
// observed. An agent is never yielded twice by the same walk.
package registry
