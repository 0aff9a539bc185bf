package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// Probe describes a fetched audio source.
type Probe struct {
	Format   string
	Duration time.Duration
	Title    string
	Artist   string
}

// ProbeAudio detects the container of data and measures its duration.
// Embedded tags are read when present.
func ProbeAudio(data []byte) (Probe, error) {
	r := bytes.NewReader(data)

	var p Probe
	tagged := false
	if isWAV(data) {
		p.Format = "wav"
	} else if _, ft, err := tag.Identify(r); err == nil {
		p.Format = formatName(ft)
		tagged = true
	} else {
		p.Format = "mp3"
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return p, err
	}
	if m, err := tag.ReadFrom(r); err == nil {
		p.Title = m.Title()
		p.Artist = m.Artist()
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return p, err
	}
	var err error
	switch p.Format {
	case "mp3":
		p.Duration, err = durationMP3(r, int64(len(data)), tagged)
	case "flac":
		p.Duration, err = durationFLAC(r)
	case "wav":
		p.Duration, err = durationWAV(r, int64(len(data)))
	case "m4a":
		p.Duration, err = durationM4A(r)
	default:
		err = fmt.Errorf("unsupported format: %s", p.Format)
	}
	return p, err
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func formatName(ft tag.FileType) string {
	switch ft {
	case tag.MP3:
		return "mp3"
	case tag.FLAC:
		return "flac"
	case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
		return "m4a"
	case tag.OGG:
		return "ogg"
	}
	return string(ft)
}

// durationMP3 sums decoded frame durations. When no frame decodes, a tagged
// file is estimated from its byte count at 128 kbps.
func durationMP3(r io.Reader, size int64, tagged bool) (time.Duration, error) {
	dec := mp3.NewDecoder(r)
	var (
		total   time.Duration
		skipped int
		frames  int
	)
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			break
		}
		total += fr.Duration()
		frames++
	}
	if frames > 0 {
		return total, nil
	}
	if tagged {
		return estimateFromSize(size, 128000)
	}
	return 0, errors.New("no mp3 frames found")
}

func durationFLAC(r io.Reader) (time.Duration, error) {
	stream, err := flac.New(r)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0, errors.New("flac stream missing sample info")
	}
	return time.Duration(float64(si.NSamples) / float64(si.SampleRate) * float64(time.Second)), nil
}

func durationWAV(r io.ReadSeeker, size int64) (time.Duration, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, errors.New("invalid wav header")
	}
	pcmBytes := max(size-44, 0)
	frameSize := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if frameSize <= 0 {
		return 0, errors.New("invalid sample frame size")
	}
	frames := pcmBytes / frameSize
	return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate), nil
}

// durationM4A reads timescale and duration from the moov/mvhd atom.
func durationM4A(r io.ReadSeeker) (time.Duration, error) {
	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, fmt.Errorf("mvhd atom not found: %w", err)
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, errors.New("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		for read := int64(8); read < size; {
			if _, err := io.ReadFull(r, head); err != nil {
				return 0, err
			}
			subSize := int64(binary.BigEndian.Uint32(head[0:4]))
			if string(head[4:8]) == "mvhd" {
				return readMVHD(r)
			}
			if subSize < 8 {
				return 0, errors.New("invalid sub-atom size")
			}
			if _, err := r.Seek(subSize-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += subSize
		}
		return 0, errors.New("mvhd atom not found")
	}
}

func readMVHD(r io.ReadSeeker) (time.Duration, error) {
	var version [4]byte // version + flags
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return 0, err
	}

	var timescale uint32
	var units uint64
	if version[0] == 1 {
		var buf [28]byte // creation(8) modification(8) timescale(4) duration(8)
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(buf[16:20])
		units = binary.BigEndian.Uint64(buf[20:28])
	} else {
		var buf [16]byte // creation(4) modification(4) timescale(4) duration(4)
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(buf[8:12])
		units = uint64(binary.BigEndian.Uint32(buf[12:16]))
	}
	if timescale == 0 {
		return 0, errors.New("invalid timescale")
	}
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second)), nil
}

func estimateFromSize(size int64, bitrate int64) (time.Duration, error) {
	if size <= 0 {
		return 0, errors.New("empty source")
	}
	return time.Duration(size*8) * time.Second / time.Duration(bitrate), nil
}
