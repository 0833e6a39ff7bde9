package waveform

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV encodes samples as a mono 16-bit PCM RIFF file.
func EncodeWAV(samples Buffer, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	const (
		numChannels   = uint16(1)
		bitsPerSample = uint16(16)
	)
	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, []int16(samples)); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV reads back a file produced by EncodeWAV.
func DecodeWAV(data []byte) (Buffer, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("wav data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	r := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read wav header: %w", err)
	}
	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return nil, 0, fmt.Errorf("invalid wav file: missing RIFF header")
	case string(header.Format[:]) != "WAVE":
		return nil, 0, fmt.Errorf("invalid wav file: missing WAVE format")
	case string(header.Subchunk1ID[:]) != "fmt ":
		return nil, 0, fmt.Errorf("invalid wav file: missing fmt chunk")
	case string(header.Subchunk2ID[:]) != "data":
		return nil, 0, fmt.Errorf("invalid wav file: missing data chunk")
	case header.AudioFormat != 1:
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	case header.BitsPerSample != 16:
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	case header.NumChannels != 1:
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	samples := make(Buffer, int(header.Subchunk2Size)/2)
	if err := binary.Read(r, binary.LittleEndian, []int16(samples)); err != nil {
		return nil, 0, fmt.Errorf("read wav samples: %w", err)
	}
	return samples, int(header.SampleRate), nil
}

func WriteWAVFile(path string, samples Buffer, sampleRate int) error {
	out, err := OpenWAVFile(path)
	if err != nil {
		return err
	}
	return out.Write(samples, sampleRate)
}

// WAVFile is an output file opened before its samples exist, so an
// unwritable destination is reported up front.
type WAVFile struct {
	f       *os.File
	created bool
}

// OpenWAVFile opens path for writing without truncating it.
func OpenWAVFile(path string) (*WAVFile, error) {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for writing: %w", path, err)
	}
	return &WAVFile{f: f, created: os.IsNotExist(statErr)}, nil
}

func (w *WAVFile) Name() string {
	return w.f.Name()
}

// Write replaces the file contents with the encoded samples and closes it.
func (w *WAVFile) Write(samples Buffer, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		w.Discard()
		return err
	}
	if err := w.f.Truncate(0); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("truncate %s: %w", w.f.Name(), err)
	}
	if _, err := w.f.WriteAt(data, 0); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("write %s: %w", w.f.Name(), err)
	}
	return w.f.Close()
}

// Discard closes the file, removing it when OpenWAVFile created it.
// Existing files are left untouched.
func (w *WAVFile) Discard() {
	_ = w.f.Close()
	if w.created {
		_ = os.Remove(w.f.Name())
	}
}
