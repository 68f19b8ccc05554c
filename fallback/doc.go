// Package fallback provides the single-attempt primitive shared by the dual
// table and blob clients.
//
// Try runs one backend operation and captures its outcome, including panics, in a
// Result so the caller can decide whether to consult the fallback backend. There are
// no retries and no timeouts at this layer; deadlines belong to the context and to the
// SDK client options.
//
// IsNotFound is the only place where a backend error is interpreted: the not-found
// signal moves a read on to the fallback backend, every other error is returned to the
// caller unchanged.
//
// Notify delivers a FallbackTracker notification without ever blocking or failing the
// operation that triggered it.
package fallback
