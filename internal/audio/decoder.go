package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/thoas/go-funk"

	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

const (
	extMP3  = ".mp3"
	extWAV  = ".wav"
	extFLAC = ".flac"
	extOGG  = ".ogg"
)

// SupportedFormats returns list of formats the beep engine can decode
func SupportedFormats() []string {
	return []string{extMP3, extWAV, extFLAC, extOGG}
}

// Decoder turns files into beep streams, restricted to a configured set of formats
type Decoder struct {
	formats []string
}

// NewDecoder creates a decoder accepting the given extensions.
// An empty list accepts every format in SupportedFormats.
func NewDecoder(formats []string) *Decoder {
	if len(formats) == 0 {
		formats = SupportedFormats()
	}
	normalized := funk.Map(formats, func(f string) string {
		f = strings.ToLower(strings.TrimSpace(f))
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		return f
	}).([]string)

	return &Decoder{
		formats: funk.FilterString(normalized, func(f string) bool {
			return funk.ContainsString(SupportedFormats(), f)
		}),
	}
}

// Formats returns the extensions this decoder accepts
func (d *Decoder) Formats() []string {
	return d.formats
}

// IsSupported checks if a file extension is accepted
func (d *Decoder) IsSupported(filePath string) bool {
	return funk.ContainsString(d.formats, strings.ToLower(filepath.Ext(filePath)))
}

// Decode decodes an audio file. The extension decides the codec; files without
// a known extension are identified from their content.
func (d *Decoder) Decode(r io.ReadSeekCloser, filePath string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if !funk.ContainsString(SupportedFormats(), ext) {
		sniffed, err := sniffFormat(r)
		if err != nil {
			return nil, beep.Format{}, err
		}
		ext = sniffed
	}
	if !funk.ContainsString(d.formats, ext) {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, ext)
	}

	switch ext {
	case extMP3:
		return mp3.Decode(r)
	case extWAV:
		return wav.Decode(r)
	case extFLAC:
		return flac.Decode(r)
	case extOGG:
		return vorbis.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, ext)
	}
}

// sniffFormat maps the content of r to an extension and rewinds r
func sniffFormat(r io.ReadSeeker) (string, error) {
	header := make([]byte, 12)
	n, _ := io.ReadFull(r, header)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind: %w", err)
	}
	if n == len(header) && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")) {
		return extWAV, nil
	}

	_, fileType, err := tag.Identify(r)
	if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("rewind: %w", seekErr)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", playerrors.ErrInvalidFormat, err)
	}

	switch fileType {
	case tag.MP3:
		return extMP3, nil
	case tag.FLAC:
		return extFLAC, nil
	case tag.OGG:
		return extOGG, nil
	default:
		return "", fmt.Errorf("%w: %s", playerrors.ErrInvalidFormat, fileType)
	}
}
