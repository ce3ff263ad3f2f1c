package wavmedia

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// TestWriterFinalizeScenario4 mirrors the seeded receiver-finalization
// scenario: 10 payloads of 160 bytes each, then Finalize.
func TestWriterFinalizeScenario4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 160)
	for i := 0; i < 10; i++ {
		if err := w.Write(payload); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 58+1600 {
		t.Fatalf("file size = %d, want 1658", len(data))
	}
	if riff := binary.LittleEndian.Uint32(data[4:8]); riff != 1650 {
		t.Fatalf("riff size = %d, want 1650", riff)
	}
	if sc := binary.LittleEndian.Uint32(data[46:50]); sc != 1600 {
		t.Fatalf("sample count = %d, want 1600", sc)
	}
	if ds := binary.LittleEndian.Uint32(data[54:58]); ds != 1600 {
		t.Fatalf("data size = %d, want 1600", ds)
	}
}

func TestWriterHeaderLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hdr.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize {
		t.Fatalf("empty file size = %d, want %d", len(data), HeaderSize)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic: %v", data[:12])
	}
	if string(data[12:16]) != "fmt " || string(data[38:42]) != "fact" || string(data[50:54]) != "data" {
		t.Fatalf("chunk ids misplaced: %q %q %q", data[12:16], data[38:42], data[50:54])
	}
	if tag := binary.LittleEndian.Uint16(data[20:22]); tag != formatTagMuLaw {
		t.Fatalf("format tag = %d, want 7", tag)
	}
}

func TestWriteAfterFinalizeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]byte{1, 2, 3}); err != ErrAlreadyFinalized {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestSynthesizeToneLength(t *testing.T) {
	tone := SynthesizeTone()
	if len(tone) != sampleRateHz {
		t.Fatalf("tone length = %d, want %d", len(tone), sampleRateHz)
	}
}

// TestSilentStopScenario5 mirrors the seeded scenario: stop with no
// packets received, so the writer's data region is filled with the
// synthetic tone.
func TestSilentStopScenario5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(SynthesizeTone()); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	dataSize := binary.LittleEndian.Uint32(data[54:58])
	if dataSize != sampleRateHz {
		t.Fatalf("data size = %d, want %d", dataSize, sampleRateHz)
	}
	if len(data) != HeaderSize+sampleRateHz {
		t.Fatalf("file size = %d", len(data))
	}
}

func TestInspectFindsDataChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 500)
	if err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	info, err := Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.DataSize != 500 {
		t.Fatalf("data size = %d, want 500", info.DataSize)
	}
	if info.SampleRate != sampleRateHz {
		t.Fatalf("sample rate = %d", info.SampleRate)
	}
}

func TestInspectRejectsNonRIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(path); err != ErrNotRIFF {
		t.Fatalf("err = %v, want ErrNotRIFF", err)
	}
}

// TestOpenSendSourceOwnWriterRoundTrip is the regression the fixed-64-byte
// skip broke: a file recorded by this endpoint's own Writer (58-byte
// header, fmt+fact+data, no extra chunks) must play back with every byte
// of recorded audio intact, not misaligned by 6 bytes.
func TestOpenSendSourceOwnWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorded.wav")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 320)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	f, err := OpenSendSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got := make([]byte, 320)
	if _, err := f.Read(got); err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d (frame alignment broken)", i, b, byte(i))
		}
	}
}

// TestOpenSendSourceSkipsExtraChunks verifies the chunk walk actually
// walks — an extra chunk before data (e.g. LIST, as real-world encoders
// emit) must not throw off the data chunk's located offset, unlike a
// fixed-skip reader.
func TestOpenSendSourceSkipsExtraChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "withlist.wav")

	var buf []byte
	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, make([]byte, 4)...) // riff size, unused by the reader
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	fmtBody := make([]byte, 18)
	binary.LittleEndian.PutUint16(fmtBody[0:2], formatTagMuLaw)
	binary.LittleEndian.PutUint16(fmtBody[2:4], channelsMono)
	binary.LittleEndian.PutUint32(fmtBody[4:8], sampleRateHz)
	buf = append(buf, uint32LE(uint32(len(fmtBody)))...)
	buf = append(buf, fmtBody...)

	listBody := []byte("INFOsome metadata that has nothing to do with audio")
	buf = append(buf, []byte("LIST")...)
	buf = append(buf, uint32LE(uint32(len(listBody)))...)
	buf = append(buf, listBody...)

	audio := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	buf = append(buf, []byte("data")...)
	buf = append(buf, uint32LE(uint32(len(audio)))...)
	buf = append(buf, audio...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenSendSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got := make([]byte, len(audio))
	if _, err := f.Read(got); err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != audio[i] {
			t.Fatalf("byte %d = %x, want %x", i, b, audio[i])
		}
	}
}

func uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
