package audio

import "bytes"

// DefaultExt is used when the payload matches no known container.
const DefaultExt = ".wav"

type signature struct {
	offset int
	magic  []byte
	ext    string
}

var signatures = []signature{
	{offset: 0, magic: []byte("OggS"), ext: ".ogg"},
	{offset: 0, magic: []byte{0x1A, 0x45, 0xDF, 0xA3}, ext: ".webm"},
	{offset: 0, magic: []byte("fLaC"), ext: ".flac"},
	{offset: 0, magic: []byte("ID3"), ext: ".mp3"},
	{offset: 4, magic: []byte("ftyp"), ext: ".m4a"},
}

// SniffExt returns the file suffix that matches the container of data, so
// downstream decoders that look at the extension pick the right demuxer.
func SniffExt(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return ".wav"
	}

	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(data) >= end && bytes.Equal(data[sig.offset:end], sig.magic) {
			return sig.ext
		}
	}

	// MPEG audio frame sync without an ID3 tag.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return ".mp3"
	}

	return DefaultExt
}
