// Package probe reads technical and EXIF metadata from media files.
//
// Every prober returns the same flattened key/value form: ExifTool group
// prefixes ("EXIF:", "QuickTime:") are stripped so that "EXIF:Make" and
// "Make" are the same key. When a key appears in more than one group the
// last occurrence wins.
package probe

import (
	"context"
	"strings"
)

// Tags is the flattened metadata of one file.
type Tags map[string]string

// Get returns the value of the first key present, or "".
func (t Tags) Get(keys ...string) string {
	for _, k := range keys {
		if v, ok := t[k]; ok {
			return v
		}
	}
	return ""
}

// Set stores a value under the flattened form of key.
func (t Tags) Set(key, value string) {
	t[FlattenKey(key)] = value
}

// FlattenKey strips any "group:" prefixes, keeping the last segment.
func FlattenKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Prober reads the metadata of a single file.
type Prober interface {
	Probe(ctx context.Context, path string) (Tags, error)
}

// Session is a prober that holds resources, such as a long-running
// process, and must be closed.
type Session interface {
	Prober
	Close() error
}

// Opener is implemented by probers that can hand each worker its own
// Session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenSession returns a per-worker session when p supports one, or p
// itself wrapped with a no-op Close.
func OpenSession(ctx context.Context, p Prober) (Session, error) {
	if o, ok := p.(Opener); ok {
		return o.Open(ctx)
	}
	return nopSession{p}, nil
}

type nopSession struct{ Prober }

func (nopSession) Close() error { return nil }
