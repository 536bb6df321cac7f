package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind represents the media kind of a file.
type Kind string

const (
	// KindImage represents an image file, raw or not.
	KindImage Kind = "image"
	// KindVideo represents a video file.
	KindVideo Kind = "video"
	// KindUnknown represents an unsupported file.
	KindUnknown Kind = "unknown"
)

// DefaultRawExtensions lists camera raw formats. They are classified as images.
var DefaultRawExtensions = []string{"CR2", "CR3", "DNG", "NEF", "ARW", "ORF", "RW2", "RAF"}

// DefaultImageExtensions lists non-raw image formats.
var DefaultImageExtensions = []string{"JPEG", "JPG", "TIFF", "TIF", "PNG", "BMP", "HEIC"}

// DefaultVideoExtensions lists video formats.
var DefaultVideoExtensions = []string{"MOV", "MP4", "M4V", "3G2", "3GP", "AVI", "MTS"}

// MimeTypes maps upper-case extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	"JPG":  "image/jpeg",
	"JPEG": "image/jpeg",
	"PNG":  "image/png",
	"BMP":  "image/bmp",
	"TIFF": "image/tiff",
	"TIF":  "image/tiff",
	"HEIC": "image/heic",
	"CR2":  "image/x-canon-cr2",
	"CR3":  "image/x-canon-cr3",
	"DNG":  "image/x-adobe-dng",
	"NEF":  "image/x-nikon-nef",
	"ARW":  "image/x-sony-arw",
	"ORF":  "image/x-olympus-orf",
	"RW2":  "image/x-panasonic-rw2",
	"RAF":  "image/x-fuji-raf",

	// Videos
	"MOV": "video/quicktime",
	"MP4": "video/mp4",
	"M4V": "video/x-m4v",
	"3G2": "video/3gpp2",
	"3GP": "video/3gpp",
	"AVI": "video/x-msvideo",
	"MTS": "video/mp2t",
}

// Classifier maps extensions to kinds.
type Classifier struct {
	images map[string]bool
	raws   map[string]bool
	videos map[string]bool
}

// NewClassifier builds a classifier from extension lists. Extensions are
// normalized, so "jpg", ".jpg" and "JPG" are equivalent. A raw extension is
// an image regardless of whether it also appears in images.
func NewClassifier(images, raws, videos []string) *Classifier {
	return &Classifier{
		images: toSet(images),
		raws:   toSet(raws),
		videos: toSet(videos),
	}
}

func toSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if n := NormalizeExtension(ext); n != "" {
			set[n] = true
		}
	}
	return set
}

// Classify returns the kind of an extension and whether it is a raw format.
func (c *Classifier) Classify(ext string) (Kind, bool) {
	ext = NormalizeExtension(ext)
	switch {
	case ext == "":
		return KindUnknown, false
	case c.raws[ext]:
		return KindImage, true
	case c.images[ext]:
		return KindImage, false
	case c.videos[ext]:
		return KindVideo, false
	default:
		return KindUnknown, false
	}
}

// NormalizeExtension strips a leading dot and upper-cases the extension.
func NormalizeExtension(ext string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Extension returns the normalized extension of a file name.
func Extension(name string) string {
	return NormalizeExtension(filepath.Ext(name))
}

// BaseName returns the file name without directory and extension.
func BaseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GuessMimeType returns the MIME type for an extension, or "" if unknown.
func GuessMimeType(ext string) string {
	return MimeTypes[NormalizeExtension(ext)]
}

// OutputExtension returns the extension used for converted files of a kind,
// including the leading dot. Unknown kinds have no output extension.
func OutputExtension(kind Kind) string {
	switch kind {
	case KindImage:
		return ".JPG"
	case KindVideo:
		return ".MP4"
	default:
		return ""
	}
}

// ParseKind converts a stored kind string back to a Kind.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindImage:
		return KindImage
	case KindVideo:
		return KindVideo
	default:
		return KindUnknown
	}
}
