// Package metadata extracts descriptive fields from voice memo recordings.
package metadata

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// ErrInvalidFormat indicates the file is not a valid M4A/MP4 file.
var ErrInvalidFormat = errors.New("invalid M4A format")

// AudioMetadata holds the optional fields known about a recording. Zero values
// mean the field could not be determined.
type AudioMetadata struct {
	Title        string
	Duration     time.Duration
	CreationTime time.Time
	Device       string
}

// IsZero reports whether nothing was extracted.
func (m AudioMetadata) IsZero() bool {
	return m.Title == "" && m.Duration == 0 && m.CreationTime.IsZero() && m.Device == ""
}

var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

var m4aBrands = []string{"M4A ", "M4B ", "mp41", "mp42", "isom"}

// ReadM4A walks the MP4 box tree of an M4A file and returns the movie header
// creation time and duration along with the iTunes-style title, if present.
func ReadM4A(path string) (AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return AudioMetadata{}, err
	}
	defer f.Close()

	return parseM4A(f)
}

type box struct {
	kind  string
	start int64 // first byte after the header
	end   int64
}

func parseM4A(r io.ReadSeeker) (AudioMetadata, error) {
	var meta AudioMetadata

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return meta, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return meta, err
	}

	var foundFtyp, foundMoov bool
	err = eachBox(r, 0, size, func(b box) error {
		switch b.kind {
		case "ftyp":
			if err := checkBrand(r); err != nil {
				return err
			}
			foundFtyp = true
		case "moov":
			foundMoov = true
			return eachBox(r, b.start, b.end, func(child box) error {
				switch child.kind {
				case "mvhd":
					return readMvhd(r, child, &meta)
				case "udta":
					title, err := readTitle(r, child)
					if err != nil {
						return err
					}
					meta.Title = title
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return AudioMetadata{}, err
	}

	if !foundFtyp || !foundMoov {
		return AudioMetadata{}, ErrInvalidFormat
	}
	return meta, nil
}

// eachBox calls fn for every box between from and limit. The reader is
// positioned at the start of each box body when fn runs.
func eachBox(r io.ReadSeeker, from, limit int64, fn func(box) error) error {
	pos := from
	for pos < limit {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return err
		}
		b, err := readBoxHeader(r, pos, limit)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		pos = b.end
	}
	return nil
}

func readBoxHeader(r io.Reader, pos, limit int64) (box, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return box{}, ErrInvalidFormat
	}

	size := int64(binary.BigEndian.Uint32(header[0:4]))
	b := box{kind: string(header[4:8]), start: pos + 8}

	switch size {
	case 0:
		size = limit - pos
	case 1:
		var large [8]byte
		if _, err := io.ReadFull(r, large[:]); err != nil {
			return box{}, ErrInvalidFormat
		}
		size = int64(binary.BigEndian.Uint64(large[:]))
		b.start += 8
	}

	b.end = pos + size
	if b.end < b.start || b.end > limit {
		return box{}, ErrInvalidFormat
	}
	return b, nil
}

func checkBrand(r io.Reader) error {
	var brand [4]byte
	if _, err := io.ReadFull(r, brand[:]); err != nil {
		return ErrInvalidFormat
	}
	for _, b := range m4aBrands {
		if string(brand[:]) == b {
			return nil
		}
	}
	return ErrInvalidFormat
}

func readMvhd(r io.Reader, b box, meta *AudioMetadata) error {
	var versionFlags [4]byte
	if _, err := io.ReadFull(r, versionFlags[:]); err != nil {
		return ErrInvalidFormat
	}

	var created, duration uint64
	var timescale uint32
	if versionFlags[0] == 1 {
		var fields [28]byte
		if _, err := io.ReadFull(r, fields[:]); err != nil {
			return ErrInvalidFormat
		}
		created = binary.BigEndian.Uint64(fields[0:8])
		timescale = binary.BigEndian.Uint32(fields[16:20])
		duration = binary.BigEndian.Uint64(fields[20:28])
	} else {
		var fields [16]byte
		if _, err := io.ReadFull(r, fields[:]); err != nil {
			return ErrInvalidFormat
		}
		created = uint64(binary.BigEndian.Uint32(fields[0:4]))
		timescale = binary.BigEndian.Uint32(fields[8:12])
		duration = uint64(binary.BigEndian.Uint32(fields[12:16]))
	}

	if created > 0 {
		meta.CreationTime = macEpoch.Add(time.Duration(created) * time.Second)
	}
	if timescale > 0 {
		meta.Duration = time.Duration(duration) * time.Second / time.Duration(timescale)
	}
	return nil
}

// readTitle descends udta/meta/ilst/©nam/data. A missing title is not an error.
func readTitle(r io.ReadSeeker, udta box) (string, error) {
	path := []struct {
		kind string
		skip int64 // full boxes carry version and flags before their children
	}{
		{"meta", 4},
		{"ilst", 0},
		{"\xa9nam", 0},
		{"data", 8},
	}

	current := udta
	for _, step := range path {
		var found *box
		err := eachBox(r, current.start, current.end, func(child box) error {
			if found == nil && child.kind == step.kind {
				c := child
				c.start += step.skip
				found = &c
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		if found == nil || found.start > found.end {
			return "", nil
		}
		current = *found
	}

	if _, err := r.Seek(current.start, io.SeekStart); err != nil {
		return "", err
	}
	text := make([]byte, current.end-current.start)
	if _, err := io.ReadFull(r, text); err != nil {
		return "", ErrInvalidFormat
	}
	return strings.TrimSpace(string(text)), nil
}
