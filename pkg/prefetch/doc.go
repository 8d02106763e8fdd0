// Package prefetch implements a prefetching cache that sits between a remote
// ordered-stream data source and a consumer that processes records in order.
// A single background daemon continuously pulls batches ahead of demand,
// buffers them in a bounded cache, and releases them through a pull-based
// delivery protocol, decoupling network fetch latency from consumer
// processing latency.
//
// Terminology
//   - Continuation token: an opaque, source-defined value that resumes a fetch
//     from exactly after the last delivered record.
//   - High-water sequence number: the sequence number of the most recent record
//     already fetched or delivered, used to resume after a recoverable error.
//     An empty batch carries the previous value forward.
//   - Demand: the count of deliveries the consumer has authorized but not yet
//     received.
//
// Main components
//   - Publisher: the engine and coordinator. It owns the retrieval daemon (a
//     single long-lived goroutine), the bounded entry queue, the capacity
//     counters, and the rewind gate. Consumers interact with it through
//     Start, GetNext, Subscribe/Request/Cancel, RestartFrom and Shutdown.
//   - FetchStrategy: the user-provided collaborator that performs the actual
//     network calls and owns iterator semantics. The daemon classifies its
//     errors into a finite taxonomy and never terminates on a source error.
//   - Capacity counters: total buffered record count and byte size, each with
//     its own ceiling. Together with the queue's fixed slot capacity they form
//     three independent gates that must all pass before the daemon fetches.
//   - Rewind gate: a read-write lock plus a was-reset flag. Insert attempts
//     hold the read side for a whole fetch cycle and, while the queue is full,
//     periodically release and re-acquire it so a pending rewind is granted.
//     A rewind that lands mid-insertion causes the fetched batch to be
//     discarded; it reflects a stale position.
//
// Ordering and delivery
//   - Entries are delivered strictly in insertion order. Total deliveries
//     never exceed cumulative granted demand, and after Cancel no delivery
//     occurs until a new Request. After RestartFrom, no entry fetched before
//     the rewind is ever delivered.
//
// Usage
//  1. Construct a FetchStrategy for the source partition.
//  2. Construct a Publisher with New(logger, strategy, config, metrics).
//  3. Call Start with the starting position; the daemon begins prefetching.
//  4. Either call GetNext in a loop, or Subscribe and grant demand with
//     Request(n).
//  5. Call Shutdown to stop the daemon; it releases the fetch strategy
//     exactly once.
package prefetch
