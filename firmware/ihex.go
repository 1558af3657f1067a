// Package firmware parses Intel HEX images and downloads them into the
// RAM of an EZ-USB FX2 over its default control endpoint.
package firmware

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcinbor85/gohex"
)

var (
	// ErrChecksum is returned for a record whose checksum does not match.
	ErrChecksum = errors.New("firmware: bad record checksum")

	// ErrSyntax is returned for a malformed record.
	ErrSyntax = errors.New("firmware: malformed record")
)

// Segment is a run of bytes to be written at Addr.
type Segment struct {
	Addr uint32
	Data []byte
}

// Image is a parsed firmware image. Contiguous data records are merged
// and segments are sorted by address.
type Image struct {
	Segments []Segment
}

// Size returns the total number of data bytes.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// ParseFile reads an Intel HEX image from path.
func ParseFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Parse reads Intel HEX records from r up to the end-of-file record.
func Parse(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		kind := ErrSyntax
		if strings.Contains(strings.ToLower(err.Error()), "checksum") {
			kind = ErrChecksum
		}
		return nil, fmt.Errorf("%w: %v", kind, err)
	}

	img := &Image{}
	for _, s := range mem.GetDataSegments() {
		img.Segments = append(img.Segments, Segment{Addr: s.Address, Data: s.Data})
	}
	return img, nil
}
