package wavmedia

import (
	"encoding/binary"
	"fmt"
	"os"
)

// HeaderSize is the fixed header length this endpoint writes: RIFF/WAVE,
// an 18-byte fmt chunk, a 4-byte fact chunk, and the data chunk header
// (spec.md §3 WavContainer, §6 layout table).
const HeaderSize = 58

// Patched length field offsets (spec.md §3 invariant).
const (
	offsetRiffSize    = 4
	offsetSampleCount = 46
	offsetDataSize    = 54
)

const (
	formatTagMuLaw  = 7
	channelsMono    = 1
	sampleRateHz    = 8000
	bitsPerSampleMu = 8
)

// Writer streams μ-law payload bytes to disk behind a fixed 58-byte
// header whose three length fields are placeholders until Finalize patches
// them (spec.md §4.5).
type Writer struct {
	file      *os.File
	dataSize  int64
	finalized bool
}

// NewWriter creates path, writes the placeholder header, and returns a
// Writer ready to stream payload bytes.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavmedia: create %s: %w", path, err)
	}
	if err := writeHeader(f, 0, 0, 0); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{file: f}, nil
}

func writeHeader(f *os.File, riffSize, sampleCount, dataSize uint32) error {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 18)
	binary.LittleEndian.PutUint16(hdr[20:22], formatTagMuLaw)
	binary.LittleEndian.PutUint16(hdr[22:24], channelsMono)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRateHz)
	binary.LittleEndian.PutUint32(hdr[28:32], sampleRateHz) // byte rate == sample rate at 1 byte/sample
	binary.LittleEndian.PutUint16(hdr[32:34], 1)             // block align
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSampleMu)
	binary.LittleEndian.PutUint16(hdr[36:38], 0) // cbSize
	copy(hdr[38:42], "fact")
	binary.LittleEndian.PutUint32(hdr[42:46], 4)
	binary.LittleEndian.PutUint32(hdr[46:50], sampleCount)
	copy(hdr[50:54], "data")
	binary.LittleEndian.PutUint32(hdr[54:58], dataSize)

	// A plain Write on the freshly created file leaves the file offset at
	// HeaderSize, so the payload Writes that follow land after the header.
	_, err := f.Write(hdr[:])
	return err
}

// Write appends payload bytes to the data region. Safe to call repeatedly
// as datagrams arrive; each call flushes to disk.
func (w *Writer) Write(payload []byte) error {
	if w.finalized {
		return ErrAlreadyFinalized
	}
	n, err := w.file.Write(payload)
	w.dataSize += int64(n)
	if err != nil {
		return fmt.Errorf("wavmedia: write payload: %w", err)
	}
	return w.file.Sync()
}

// DataSize reports bytes written to the data region so far.
func (w *Writer) DataSize() int64 { return w.dataSize }

// Finalize patches the three length fields at offsets 4/46/54 and closes
// the file. fileSize = HeaderSize + DataSize, riffSize = fileSize - 8,
// sampleCount = dataSize (spec.md §8 invariants).
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	fileSize := int64(HeaderSize) + w.dataSize
	riffSize := uint32(fileSize - 8)
	sampleCount := uint32(w.dataSize)
	dataSize := uint32(w.dataSize)

	if err := patchUint32(w.file, offsetRiffSize, riffSize); err != nil {
		return err
	}
	if err := patchUint32(w.file, offsetSampleCount, sampleCount); err != nil {
		return err
	}
	if err := patchUint32(w.file, offsetDataSize, dataSize); err != nil {
		return err
	}
	return w.file.Close()
}

func patchUint32(f *os.File, offset int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := f.WriteAt(b[:], offset)
	return err
}
