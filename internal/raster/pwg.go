package raster

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/michaelrsweet/pappl-sub004/internal/job"
)

// pwgSyncWord is the magic at the start of a PWG Raster or Apple Raster (URF)
// stream. "RaS2" is PWG big-endian; URF streams use a different container
// that this reader does not attempt to parse (apps send PNG to get the
// conversion path instead).
var pwgSyncWord = [4]byte{'R', 'a', 'S', '2'}

// pwgHeaderSize is the fixed per-page header size defined by the PWG Raster
// Format spec (1.796 bytes draft-3): a 64-byte PostScript-identity field
// followed by fixed-width fields, padded to 1796 bytes total.
const pwgHeaderSize = 1796

// PWGPageHeader holds the fields of one PWG raster page header that this
// pipeline actually consumes; the remaining reserved/vendor fields are
// skipped rather than modeled.
type PWGPageHeader struct {
	MediaType        string
	PrintQuality     int32
	Width            uint32
	Height           uint32
	BitsPerColor     uint32
	BitsPerPixel     uint32
	BytesPerLine     uint32
	ColorSpace       uint32
	NumColors        uint32
	TotalPageCount   uint32
	CrossFeedTransform int32
	FeedTransform      int32
	HWResolutionX    uint32
	HWResolutionY    uint32
}

// ProcessPWG implements the raw PWG-raster path of spec.md §4.C: stream
// header-then-rows straight to the driver without the PNG path's
// scale/rotate/dither, since the client has already rendered the page.
func ProcessPWG(j *job.Job, drv Driver, opts *Options, dev io.Writer, r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("raster: read pwg sync word: %w", err)
	}
	if magic != pwgSyncWord {
		return fmt.Errorf("raster: not a PWG raster stream (got %q)", magic)
	}

	if !drv.StartJob(j, opts, dev) {
		return fmt.Errorf("raster: driver rejected start-job for job %d", j.ID)
	}

	pageNo := 0
	for {
		if j.IsCanceled() {
			break
		}
		hdr, err := readPWGPageHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			drv.EndJob(j, opts)
			return err
		}
		pageNo++
		if err := streamPWGPage(j, drv, opts, r, hdr, pageNo); err != nil {
			drv.EndJob(j, opts)
			return err
		}
	}

	if !drv.EndJob(j, opts) {
		return fmt.Errorf("raster: driver rejected end-job for job %d", j.ID)
	}
	return nil
}

func readPWGPageHeader(r io.Reader) (PWGPageHeader, error) {
	buf := make([]byte, pwgHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return PWGPageHeader{}, io.EOF
		}
		return PWGPageHeader{}, err
	}

	// Field offsets per the PWG Raster Format spec: the 64-byte identity
	// string, a 64-byte MediaColor, 64-byte MediaType, 64-byte
	// OutputType, then fixed uint32/int32 fields.
	const (
		offMediaType    = 64 + 64
		offPrintQuality = 64 + 64 + 64 + 64 + 4*10
	)
	mediaType := cString(buf[offMediaType : offMediaType+64])
	printQuality := int32(binary.BigEndian.Uint32(buf[offPrintQuality:]))

	// The width/height/bpc/bpp/bytesPerLine/colorSpace/numColors block
	// starts at a fixed offset further into the header.
	const fieldsOff = 64 + 64 + 64 + 64 + 4*24
	f := buf[fieldsOff:]
	hdr := PWGPageHeader{
		MediaType:    mediaType,
		PrintQuality: printQuality,
	}
	if len(f) >= 4*7 {
		hdr.BitsPerColor = binary.BigEndian.Uint32(f[0:4])
		hdr.BitsPerPixel = binary.BigEndian.Uint32(f[4:8])
		hdr.BytesPerLine = binary.BigEndian.Uint32(f[8:12])
		hdr.ColorSpace = binary.BigEndian.Uint32(f[12:16])
		hdr.NumColors = binary.BigEndian.Uint32(f[20:24])
	}

	const dimOff = fieldsOff + 4*7 + 4*14
	if len(buf) >= dimOff+4*8 {
		d := buf[dimOff:]
		hdr.Width = binary.BigEndian.Uint32(d[0:4])
		hdr.Height = binary.BigEndian.Uint32(d[4:8])
	}

	if hdr.BytesPerLine == 0 && hdr.Width > 0 && hdr.BitsPerPixel > 0 {
		hdr.BytesPerLine = (hdr.Width*hdr.BitsPerPixel + 7) / 8
	}
	return hdr, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func streamPWGPage(j *job.Job, drv Driver, opts *Options, r io.Reader, hdr PWGPageHeader, pageNo int) error {
	if !drv.StartPage(j, opts, pageNo) {
		return fmt.Errorf("raster: driver rejected start-page %d for job %d", pageNo, j.ID)
	}

	bpl := int(hdr.BytesPerLine)
	if bpl <= 0 {
		bpl = (int(hdr.Width)*int(hdr.BitsPerPixel) + 7) / 8
	}
	row := make([]byte, bpl)

	for y := 0; y < int(hdr.Height); y++ {
		if j.IsCanceled() {
			break
		}
		if _, err := io.ReadFull(r, row); err != nil {
			return fmt.Errorf("raster: read row %d of page %d: %w", y, pageNo, err)
		}
		if !drv.WriteRow(j, opts, y, row) {
			return fmt.Errorf("raster: driver rejected row %d for job %d", y, j.ID)
		}
	}

	if !drv.EndPage(j, opts, pageNo) {
		return fmt.Errorf("raster: driver rejected end-page %d for job %d", pageNo, j.ID)
	}
	j.AddImpressions(1)
	return nil
}
