package recorder

import (
	"encoding/binary"
	"io"
	"math"
)

// HeaderSize is the size of the canonical PCM WAV header.
const HeaderSize = 44

const bitsPerSample = 16

// wavHeader is the RIFF, fmt and data chunk headers of a PCM16 file laid out as
// they appear on disk.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

func newHeader(sampleRate, channels int, dataSize int64) wavHeader {
	if dataSize > math.MaxUint32-36 {
		dataSize = math.MaxUint32 - 36
	}
	blockAlign := channels * bitsPerSample / 8
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// writeHeader writes a 44 byte header describing dataSize bytes of PCM16.
func writeHeader(w io.Writer, sampleRate, channels int, dataSize int64) error {
	h := newHeader(sampleRate, channels, dataSize)
	return binary.Write(w, binary.LittleEndian, &h)
}

// ToPCM16 converts a float sample to signed 16-bit, clamping to [-1, 1].
func ToPCM16(s float32) int16 {
	v := float64(s)
	switch {
	case v != v: // NaN
		return 0
	case v < -1:
		v = -1
	case v > 1:
		v = 1
	}
	if v < 0 {
		return int16(math.Round(v * 0x8000))
	}
	return int16(math.Round(v * 0x7fff))
}

// encodePCM16 appends the little-endian PCM16 encoding of samples to dst.
func encodePCM16(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(ToPCM16(s)))
	}
	return dst
}
