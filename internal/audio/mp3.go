package audio

import "bytes"

// ContentTypeMPEG is the media type of every payload this service returns
const ContentTypeMPEG = "audio/mpeg"

var id3Magic = []byte("ID3")

// IsMPEGAudio reports whether b starts like an MP3 stream: an ID3v2 tag
// or an MPEG audio frame sync (11 set bits).
func IsMPEGAudio(b []byte) bool {
	if bytes.HasPrefix(b, id3Magic) {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
