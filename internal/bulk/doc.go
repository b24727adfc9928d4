// Package bulk provides the business logic for bulk CSV load orchestration.
//
// This package is the heart of the loader, containing all domain logic
// independent of any transport. It drives any remote asynchronous batch
// service that implements the [Service] interface.
//
// # Pipeline
//
// A run moves through fixed stages, composed by [Loader.Run]:
//
//  1. The dataset is split into bounded, header-prefixed chunks
//     (internal/chunk), staged through a staging provider.
//  2. [JobController] creates the remote job and submits each chunk as an
//     independently tracked batch; submission fans out across a bounded
//     worker pool.
//  3. [CompletionPoller.AwaitAll] polls batch states with one bulk query
//     per cycle until every batch is Completed or Failed.
//  4. [ResultReconciler] streams each terminal batch's per-record results
//     into [RecordOutcome] values.
//  5. The aggregate [Report] enumerates every submitted batch exactly once,
//     with outcomes or a failure reason.
//
// # Error handling
//
// Errors are typed for errors.As dispatch: [TransportError],
// [RemoteServiceError], [ChunkingError] and [TimeoutError]. Failures before
// the job closes abort the run (with the one exception documented on
// [Loader.Run]); afterwards they degrade individual batch entries.
package bulk
