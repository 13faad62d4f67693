package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

const wavHeaderSize = 44

// wavWriter streams 16-bit PCM into a RIFF/WAVE file. The header is
// written up front with zero lengths and patched on Finalize.
type wavWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
}

func newWavWriter(f *os.File, sampleRate, channels int) (*wavWriter, error) {
	w := &wavWriter{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	header := make([]byte, 0, wavHeaderSize)
	le := binary.LittleEndian

	byteRate := uint32(w.sampleRate * w.channels * 2)
	blockAlign := uint16(w.channels * 2)

	header = append(header, "RIFF"...)
	header = le.AppendUint32(header, 36+w.dataBytes)
	header = append(header, "WAVE"...)
	header = append(header, "fmt "...)
	header = le.AppendUint32(header, 16)
	header = le.AppendUint16(header, 1) // PCM
	header = le.AppendUint16(header, uint16(w.channels))
	header = le.AppendUint32(header, uint32(w.sampleRate))
	header = le.AppendUint32(header, byteRate)
	header = le.AppendUint16(header, blockAlign)
	header = le.AppendUint16(header, 16) // bits per sample
	header = append(header, "data"...)
	header = le.AppendUint32(header, w.dataBytes)

	if _, err := w.f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}

// Write appends raw PCM bytes after the header.
func (w *wavWriter) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, int64(wavHeaderSize)+int64(w.dataBytes))
	w.dataBytes += uint32(n)
	if err != nil {
		return n, fmt.Errorf("write wav data: %w", err)
	}
	return n, nil
}

// Finalize patches the header lengths and closes the file.
func (w *wavWriter) Finalize() error {
	if err := w.writeHeader(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync wav file: %w", err)
	}
	return w.f.Close()
}
