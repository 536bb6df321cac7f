//go:build windows

package filesystem

import (
	"os"
	"syscall"
	"time"
)

func creationTime(info os.FileInfo) time.Time {
	if attrs, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, attrs.CreationTime.Nanoseconds())
	}
	return info.ModTime()
}
