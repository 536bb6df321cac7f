// Package workers sizes and runs the bounded worker pools used by the
// indexing and conversion stages.
//
// # Sizing
//
// Count derives a default worker count from GOMAXPROCS, which follows the
// container CPU limit. It seeds the indexing_workers and conversion_workers
// settings defaults.
//
// # Pools
//
// A [Pool] starts a fixed number of workers up front. Each worker runs an
// optional initializer, then pulls one task at a time from a bounded queue
// until the queue is closed, then runs an optional terminator. Tasks carry a
// "k/total" progress id. A shared [StopFlag] is checked before every task;
// once set, remaining tasks are still dequeued and acknowledged but not
// executed, so Wait always reaches its join barrier. After the join the
// pool context is cancelled, killing any subprocess still bound to it.
//
// Task errors and panics are logged with the task id and never stop the
// pool. Errors marked fatal (see [IsFatal]) also raise the stop flag and
// are returned from Wait.
package workers
