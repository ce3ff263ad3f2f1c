package wavmedia

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Info is the format and data-chunk size that Inspect reads from a WAV file.
type Info struct {
	AudioFormat   uint16
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      int64
}

// chunkWalk reads the RIFF/WAVE header from f (already positioned at byte
// 0) and then calls onChunk for each chunk's ID and declared size, in file
// order. onChunk must either fully consume the chunk body and return
// (false, nil) to continue, or return (true, nil) to stop — in which case
// the file is left positioned at the first byte after the chunk's 8-byte
// header, i.e. the start of that chunk's body. This is the shared
// chunk-walking primitive behind both Inspect and OpenSendSource; real WAV
// files carry a variable-length fmt chunk and optional chunks before data,
// so both readers locate data chunk headers rather than assuming a fixed
// offset (spec.md §9 — the original's `fseek(wav_fp, 64, SEEK_SET)` is a
// legacy bug to document, not a pattern to carry forward).
func chunkWalk(f *os.File, onChunk func(id string, size uint32) (stop bool, err error)) error {
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil || string(magic[:]) != "RIFF" {
		return ErrNotRIFF
	}
	if _, err := f.Seek(4, io.SeekCurrent); err != nil { // skip riff size
		return err
	}
	if _, err := io.ReadFull(f, magic[:]); err != nil || string(magic[:]) != "WAVE" {
		return ErrNotRIFF
	}

	for {
		var chunkID [4]byte
		n, err := f.Read(chunkID[:])
		if n == 0 || err == io.EOF {
			return ErrNoDataChunk
		}
		if err != nil {
			return &ChunkError{ChunkID: "?", Cause: err}
		}

		var chunkSize uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkSize); err != nil {
			return &ChunkError{ChunkID: string(chunkID[:]), Cause: err}
		}

		stop, err := onChunk(string(chunkID[:]), chunkSize)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// Inspect chunk-walks a WAV file to read its fmt fields and the size of its
// data chunk. The control surface does not call it: uploads are stored
// without inspection, and PLAY_WAV only fails if OpenSendSource cannot
// reach a data chunk. Adapted from the teacher's media.ReadWAVFile
// chunk-walking loop.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavmedia: open %s: %w", path, err)
	}
	defer f.Close()

	info := &Info{}
	err = chunkWalk(f, func(id string, size uint32) (bool, error) {
		switch id {
		case "fmt ":
			if err := binary.Read(f, binary.LittleEndian, &info.AudioFormat); err != nil {
				return false, &ChunkError{ChunkID: "fmt ", Cause: err}
			}
			if err := binary.Read(f, binary.LittleEndian, &info.NumChannels); err != nil {
				return false, &ChunkError{ChunkID: "fmt ", Cause: err}
			}
			if err := binary.Read(f, binary.LittleEndian, &info.SampleRate); err != nil {
				return false, &ChunkError{ChunkID: "fmt ", Cause: err}
			}
			if _, err := f.Seek(6, io.SeekCurrent); err != nil { // byte rate + block align
				return false, err
			}
			if err := binary.Read(f, binary.LittleEndian, &info.BitsPerSample); err != nil {
				return false, &ChunkError{ChunkID: "fmt ", Cause: err}
			}
			if rest := int64(size) - 16; rest > 0 {
				if _, err := f.Seek(rest, io.SeekCurrent); err != nil {
					return false, err
				}
			}
			return false, nil

		case "data":
			info.DataSize = int64(size)
			return true, nil

		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return false, err
			}
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// OpenSendSource opens path and chunk-walks it to the data chunk, leaving
// the file positioned at the first audio byte — exactly the same
// chunk-walk Inspect uses, so a file recorded by this endpoint's own
// Writer (58-byte header, no extra chunks) and a file with a longer fmt
// chunk or intervening LIST/fact chunks both play back correctly.
func OpenSendSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavmedia: open %s: %w", path, err)
	}

	err = chunkWalk(f, func(id string, size uint32) (bool, error) {
		if id == "data" {
			return true, nil
		}
		if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
			return false, err
		}
		return false, nil
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wavmedia: locate data chunk in %s: %w", path, err)
	}
	return f, nil
}
