package transcriber

import (
	"encoding/binary"
	"fmt"
	"os"
)

// readWavSamples decodes a PCM WAV file into normalized float samples.
// Integer samples divide by 2^(bits-1) so the output lies in [-1, 1].
func readWavSamples(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read audio file: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%q is not a RIFF/WAVE file", path)
	}

	le := binary.LittleEndian
	var (
		sampleRate    int
		bitsPerSample int
		pcm           []byte
		haveFmt       bool
	)

	// Walk the chunk list; fmt and data may be separated by other chunks.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(le.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, fmt.Errorf("malformed fmt chunk in %q", path)
			}
			sampleRate = int(le.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(le.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkLen]
		}

		// Chunks are word-aligned.
		offset = body + chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}

	if !haveFmt || pcm == nil {
		return nil, 0, fmt.Errorf("%q is missing fmt or data chunk", path)
	}

	switch bitsPerSample {
	case 16:
		n := len(pcm) / 2
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			s := int16(le.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float32(s) / 32768
		}
		return samples, sampleRate, nil
	case 32:
		n := len(pcm) / 4
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			s := int32(le.Uint32(pcm[i*4 : i*4+4]))
			samples[i] = float32(float64(s) / 2147483648)
		}
		return samples, sampleRate, nil
	default:
		return nil, 0, fmt.Errorf("unsupported bits per sample %d in %q", bitsPerSample, path)
	}
}
