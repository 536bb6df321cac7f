// Package mediatypes provides shared type definitions and utilities for media file
// handling across the media compressor.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # Kinds
//
// Every discovered file is classified into one of three kinds:
//
//	mediatypes.KindImage   // still images, including raw formats
//	mediatypes.KindVideo   // video clips
//	mediatypes.KindUnknown // anything else; dropped by the scanner
//
// # Extension Classification
//
// Classification is table driven. A [Classifier] is built from the configured
// extension lists (upper-case, no dot) and reports the kind plus a raw flag:
//
//	c := mediatypes.NewClassifier(images, raws, videos)
//	kind, raw := c.Classify(mediatypes.Extension("IMG_1.cr2")) // KindImage, true
//
// # Output Extensions
//
// Converted files always use a fixed extension per kind, see [OutputExtension].
package mediatypes
