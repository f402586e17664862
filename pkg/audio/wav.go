package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps 16-bit PCM in a canonical RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	blockAlign := f.Channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV extracts 16-bit PCM and its format from a RIFF/WAVE file.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidFormat)
	}
	var (
		f       Format
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := min(body+size, len(data))
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidFormat)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return nil, Format{}, fmt.Errorf("%w: format tag %d is not PCM", ErrInvalidFormat, tag)
			}
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return nil, Format{}, fmt.Errorf("%w: %d-bit samples", ErrInvalidFormat, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data before fmt", ErrInvalidFormat)
			}
			return data[body:end], f, nil
		}
		off = body + size + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrInvalidFormat)
}
