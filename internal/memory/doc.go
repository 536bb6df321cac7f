// Package memory sets the Go runtime memory limit from the container limit.
//
// GOMAXPROCS follows cgroup CPU limits on its own; GOMEMLIMIT does not. Call
// [ConfigureFromEnv] early in main:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set.
//   - MEMORY_LIMIT: container limit, in bytes or with a unit ("2GiB",
//     "512 MB"), typically from the Kubernetes Downward API.
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap, between 0
//     and 1 (default 0.5). ffmpeg, ImageMagick and exiftool run as child
//     processes and need the rest.
package memory
