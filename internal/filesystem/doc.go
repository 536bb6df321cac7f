/*
Package filesystem provides the file operations shared by the indexing and
conversion stages: resilient stat/open with retry for NFS stale file
handles, content hashing, path containment checks, and output tree
maintenance.

# Retry Behavior

StatWithRetry, OpenWithRetry and ReadDirWithRetry retry only on ESTALE, with exponential
backoff (defaults: 3 retries, 50ms initial, 500ms cap). All other errors
fail immediately. Retries are labelled by volume ("monitored", "output",
"unknown_output") through a [VolumeResolver] set at startup.

# Hashing

HashFile returns the hex SHA-1 of a file read in 1 MiB chunks. It is used
for both original-content and converted-content hashes.

# Output Tree

RemoveIfExists, Reserve, CleanEmptyDirs and ClearDir implement the output
tree operations: deleting stale outputs, reserving an allocated output
name, pruning empty directories after a run, and clearing an output root.
*/
package filesystem
