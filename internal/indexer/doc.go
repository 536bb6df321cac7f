// Package indexer keeps the catalog in step with the monitored directory.
//
// A run scans the tree (or a set of changed paths), drops records whose
// source disappeared together with their output files, flags new and
// modified files, and extracts the metadata of those files over a worker
// pool. Each worker keeps its own metadata probe session.
//
// Catalog writes are serialized by the catalog itself; extraction runs in
// parallel. A stop request is honored between files, so an interrupted run
// leaves a valid, partially updated catalog.
package indexer
