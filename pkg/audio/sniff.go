package audio

// FormatTag is the result of [Classify].
type FormatTag int

const (
	// RawPCM marks headerless 16-bit little-endian PCM samples.
	RawPCM FormatTag = iota

	// ContainerFile marks a self-describing audio file (WAV, MP3, Ogg).
	ContainerFile
)

// String returns the human-readable name of the tag.
func (t FormatTag) String() string {
	switch t {
	case RawPCM:
		return "raw_pcm"
	case ContainerFile:
		return "container"
	default:
		return "unknown"
	}
}

// minSniffLen is the number of leading bytes needed before any signature is
// considered.
const minSniffLen = 4

// Classify inspects the leading bytes of data and reports whether it is
// already a container file. Signatures are checked in order: RIFF, ID3,
// OggS, then an MPEG frame sync. Anything shorter than four bytes, and
// anything unrecognised, is RawPCM.
//
// This is a heuristic. A truncated or corrupted file may be misread as PCM
// and play back as noise rather than fail.
func Classify(data []byte) FormatTag {
	if len(data) < minSniffLen {
		return RawPCM
	}
	switch {
	case data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F':
		return ContainerFile
	case data[0] == 'I' && data[1] == 'D' && data[2] == '3':
		return ContainerFile
	case data[0] == 'O' && data[1] == 'g' && data[2] == 'g' && data[3] == 'S':
		return ContainerFile
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerFile
	}
	return RawPCM
}
