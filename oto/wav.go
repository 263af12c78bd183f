package oto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteWav writes the buffer as a stereo .wav file, either 16-bit PCM or
// 32-bit float.
func WriteWav(w io.Writer, buf Buffer, sampleRate int, pcm16 bool) error {
	var out bytes.Buffer
	samples := 2 * len(buf)
	writeWavHeader(&out, samples, sampleRate, pcm16)
	var err error
	if pcm16 {
		ints := make([]int16, 0, samples)
		for _, frame := range buf {
			ints = append(ints, toInt16(frame[0]), toInt16(frame[1]))
		}
		err = binary.Write(&out, binary.LittleEndian, ints)
	} else {
		err = binary.Write(&out, binary.LittleEndian, buf)
	}
	if err != nil {
		return fmt.Errorf("could not convert buffer to bytes: %w", err)
	}
	if _, err := out.WriteTo(w); err != nil {
		return fmt.Errorf("could not write wav: %w", err)
	}
	return nil
}

func toInt16(v float32) int16 {
	return int16(max(min(v*math.MaxInt16, math.MaxInt16), math.MinInt16))
}

// writeWavHeader writes the RIFF header for the given number of samples
// (frames * 2). Float files carry the extended fmt chunk and a fact chunk.
// See http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
func writeWavHeader(buf *bytes.Buffer, samples, sampleRate int, pcm16 bool) {
	const numChannels = 2
	bytesPerSample, fmtSize, format, riffSize := 4, 18, 3, 50+4*samples // IEEE float
	if pcm16 {
		bytesPerSample, fmtSize, format, riffSize = 2, 16, 1, 36+2*samples // PCM
	}
	le := func(v any) { binary.Write(buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	le(uint32(riffSize))
	buf.WriteString("WAVEfmt ")
	le(uint32(fmtSize))
	le(uint16(format))
	le(uint16(numChannels))
	le(uint32(sampleRate))
	le(uint32(sampleRate * numChannels * bytesPerSample)) // bytes per second
	le(uint16(numChannels * bytesPerSample))              // block align
	le(uint16(8 * bytesPerSample))                        // bits per sample
	if !pcm16 {
		le(uint16(0)) // extension size
		buf.WriteString("fact")
		le(uint32(4))
		le(uint32(samples / numChannels))
	}
	buf.WriteString("data")
	le(uint32(bytesPerSample * samples))
}
