package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// WAVHeaderSize is the size of the canonical PCM WAV header
const WAVHeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodedAudio is a complete mono 16-bit WAV container. It is immutable;
// Bytes hands out a copy.
type EncodedAudio struct {
	data       []byte
	sampleRate int
	numSamples int
}

// Bytes returns a copy of the container bytes
func (e *EncodedAudio) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

// Len returns the container size in bytes
func (e *EncodedAudio) Len() int { return len(e.data) }

// SampleRate returns the rate declared in the header
func (e *EncodedAudio) SampleRate() int { return e.sampleRate }

// NumSamples returns the number of PCM samples in the payload
func (e *EncodedAudio) NumSamples() int { return e.numSamples }

// Duration returns the playback duration of the payload
func (e *EncodedAudio) Duration() time.Duration {
	if e.sampleRate == 0 {
		return 0
	}
	return time.Duration(e.numSamples) * time.Second / time.Duration(e.sampleRate)
}

// NewEncodedAudio frames PCM samples into a WAV container
func NewEncodedAudio(samples []int16, sampleRate int) (*EncodedAudio, error) {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return &EncodedAudio{data: data, sampleRate: sampleRate, numSamples: len(samples)}, nil
}

// EncodeWAV encodes PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if buf.Len() != WAVHeaderSize+int(dataSize) {
		return nil, fmt.Errorf("container size mismatch: wrote %d bytes, expected %d", buf.Len(), WAVHeaderSize+int(dataSize))
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes WAV format data back to PCM-16 samples
func DecodeWAV(data []byte) ([]int16, int, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, 0, err
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(buf, binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(header.SampleRate), nil
}

// ValidateWAV checks the container markers and that the declared RIFF and
// data sizes match the actual payload length
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if int(riffSize) != len(data)-8 {
		return fmt.Errorf("invalid WAV file: RIFF size %d does not match payload %d", riffSize, len(data)-8)
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if int(dataSize) != len(data)-WAVHeaderSize {
		return fmt.Errorf("invalid WAV file: data size %d does not match payload %d", dataSize, len(data)-WAVHeaderSize)
	}

	return nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	ByteRate      uint32  `json:"byte_rate"`
	BlockAlign    uint16  `json:"block_align"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.BitsPerSample == 0 || header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV header: zero bit depth or sample rate")
	}

	numSamples := header.Subchunk2Size / (uint32(header.BitsPerSample) / 8)
	duration := float64(numSamples) / float64(header.SampleRate)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		ByteRate:      header.ByteRate,
		BlockAlign:    header.BlockAlign,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
