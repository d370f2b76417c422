// Package master implements the coordinating side of a render. The dynamic
// Scheduler hands out one row at a time to whichever worker reports first,
// collects the results into a picture and terminates every worker once all
// rows are in. RunStatic is the message-free alternative that splits the rows
// into fixed contiguous blocks up front.
//
// The Scheduler never computes rows itself and never retries. A worker that
// stops responding stalls the run until the context is cancelled; a link
// failure or malformed message aborts it.
package master
