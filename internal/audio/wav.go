package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// BuildWAV wraps raw little-endian 16-bit PCM in a minimal RIFF/WAVE
// header so HTTP transcription services accept it directly.
func BuildWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	dataLen := len(pcm)
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVInfo describes a decoded WAV payload.
type WAVInfo struct {
	SampleRate int
	Channels   int
	// PCM is the raw little-endian 16-bit sample data.
	PCM []byte
}

// DecodeWAV parses a 16-bit PCM RIFF/WAVE file. It walks chunks rather
// than assuming fixed offsets since some encoders insert LIST/fact
// chunks before the data chunk.
func DecodeWAV(data []byte) (*WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	info := &WAVInfo{}
	pos := 12
	var haveFmt bool
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("short fmt chunk (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
			}
			haveFmt = true
		case "data":
			info.PCM = data[body : body+size]
		}
		// chunks are word-aligned
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}
	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if info.PCM == nil {
		return nil, fmt.Errorf("missing data chunk")
	}
	return info, nil
}

// WriteWAVFile persists PCM as a WAV file at path.
func WriteWAVFile(path string, pcm []byte, sampleRate, channels int) error {
	return os.WriteFile(path, BuildWAV(pcm, sampleRate, channels), 0o644)
}
