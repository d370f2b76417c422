// Package wstransport carries the row protocol over WebSocket so that workers
// can run as separate processes or on other machines.
//
// The master runs a Server, which implements transport.Hub. Each worker
// dials it with Dial, which returns a transport.Endpoint. A worker's first
// frame registers it; the acknowledgement carries the render parameters so
// remote workers need no configuration of their own. Frames are JSON
// envelopes of the form {"type": ..., "data": ...}.
//
// The set of workers is fixed once WaitForWorkers returns. A worker
// connection that drops before it was sent a termination is delivered to the
// master as a failed link.
package wstransport
