package converter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"media-compressor/internal/mediatypes"
	"media-compressor/internal/transcoder"
)

// SettingsHash digests the parameters that shape the output of a kind.
// A stored hash that differs from the current one forces reconversion.
// Videos encoded on a GPU use a different codec and hash differently from
// CPU encodes; the device index itself does not matter.
func SettingsHash(kind mediatypes.Kind, p transcoder.Params, gpu bool) string {
	var s string
	switch kind {
	case mediatypes.KindImage:
		s = fmt.Sprintf("image|quality=%d|max=%d", p.ImageQuality, p.ImageMaxDimension)
	case mediatypes.KindVideo:
		if gpu {
			s = fmt.Sprintf("video|codec=hevc_nvenc|preset=%s|max=%d|audio=%dk", p.NVENCPreset, p.VideoMaxDimension, p.AudioBitrate)
		} else {
			s = fmt.Sprintf("video|codec=libx265|crf=%d|max=%d|audio=%dk", p.VideoCRF, p.VideoMaxDimension, p.AudioBitrate)
		}
	default:
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
