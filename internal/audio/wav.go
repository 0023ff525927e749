package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WAVDecoder reads PCM samples out of the canonical RIFF/WAVE container
// produced by the synthesizers wired through ChainSynthesizer. There is no
// WAV-parsing library anywhere in the example corpus, so this is a small
// stdlib-only reader built directly against encoding/binary and the RIFF
// chunk layout (justified in DESIGN.md).
type WAVDecoder struct{}

// Open implements the decoder seam in portaudio_backend.go. sampleRate and
// channels are ignored: samples are returned at the file's own rate and
// channel layout, without resampling or remixing.
func (WAVDecoder) Open(path string, sampleRate float64, channels int) (frameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	hdr, err := readWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &wavReader{f: f, hdr: hdr}, nil
}

type wavHeader struct {
	channels      int
	sampleRate    uint32
	bitsPerSample int
	dataBytes     uint32
}

func readWAVHeader(f *os.File) (wavHeader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return wavHeader{}, fmt.Errorf("audio: read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavHeader{}, fmt.Errorf("audio: not a RIFF/WAVE file")
	}

	var hdr wavHeader
	for {
		var chunkID [4]byte
		var chunkSize uint32
		if _, err := io.ReadFull(f, chunkID[:]); err != nil {
			return wavHeader{}, fmt.Errorf("audio: read chunk id: %w", err)
		}
		if err := binary.Read(f, binary.LittleEndian, &chunkSize); err != nil {
			return wavHeader{}, fmt.Errorf("audio: read chunk size: %w", err)
		}
		switch string(chunkID[:]) {
		case "fmt ":
			var format struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(f, binary.LittleEndian, &format); err != nil {
				return wavHeader{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			hdr.channels = int(format.Channels)
			hdr.sampleRate = format.SampleRate
			hdr.bitsPerSample = int(format.BitsPerSample)
			if remaining := int64(chunkSize) - 16; remaining > 0 {
				if _, err := f.Seek(remaining, io.SeekCurrent); err != nil {
					return wavHeader{}, err
				}
			}
		case "data":
			hdr.dataBytes = chunkSize
			return hdr, nil
		default:
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return wavHeader{}, fmt.Errorf("audio: skip chunk %q: %w", chunkID, err)
			}
		}
	}
}

// wavReader decodes 16-bit PCM samples into float32 in [-1, 1], the format
// PortAudioBackend's stream expects.
type wavReader struct {
	f   *os.File
	hdr wavHeader
}

func (r *wavReader) Read(buf []float32) (int, error) {
	if r.hdr.bitsPerSample != 16 {
		return 0, fmt.Errorf("audio: unsupported bit depth %d", r.hdr.bitsPerSample)
	}
	raw := make([]byte, len(buf)*2)
	n, err := r.f.Read(raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		buf[i] = float32(v) / 32768
	}
	if samples == 0 && err == nil {
		err = io.EOF
	}
	return samples, err
}

func (r *wavReader) Close() error {
	return r.f.Close()
}
