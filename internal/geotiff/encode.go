package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

var enc = binary.LittleEndian

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

// EncodeOptions controls the georeferencing written by Encode.
type EncodeOptions struct {
	// EPSG code written to the GeoKey directory; 0 omits it.
	EPSG uint16
	// NoData, when set, is written as GDAL_NODATA.
	NoData *float64
}

// Encode writes r as an uncompressed 8-bit single-band GeoTIFF. Values above
// 255 are rejected.
func Encode(w io.Writer, r *Raster, opts EncodeOptions) error {
	if r.Width <= 0 || r.Height <= 0 || len(r.Values) != r.Width*r.Height {
		return fmt.Errorf("geotiff: raster shape %dx%d does not match %d values", r.Width, r.Height, len(r.Values))
	}

	pixels := make([]byte, len(r.Values))
	for i, v := range r.Values {
		if v > math.MaxUint8 {
			return fmt.Errorf("geotiff: value %d at %d exceeds 8 bits", v, i)
		}
		pixels[i] = byte(v)
	}

	sx := (r.Bound.Max[0] - r.Bound.Min[0]) / float64(r.Width)
	sy := (r.Bound.Max[1] - r.Bound.Min[1]) / float64(r.Height)

	var entries []ifdEntry
	add := func(tag, datatype uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, datatype, count, data})
	}

	add(tagImageWidth, dtLong, 1, enc32(uint32(r.Width)))
	add(tagImageLength, dtLong, 1, enc32(uint32(r.Height)))
	add(tagBitsPerSample, dtShort, 1, enc16(8))
	add(tagCompression, dtShort, 1, enc16(1))
	add(tagPhotometricInterpretation, dtShort, 1, enc16(1)) // MinIsBlack
	add(tagStripOffsets, dtLong, 1, enc32(0))               // patched below
	add(tagSamplesPerPixel, dtShort, 1, enc16(1))
	add(tagRowsPerStrip, dtLong, 1, enc32(uint32(r.Height)))
	add(tagStripByteCounts, dtLong, 1, enc32(uint32(len(pixels))))
	add(tagModelPixelScale, dtDouble, 3, encDoubles(sx, sy, 0))
	add(tagModelTiepoint, dtDouble, 6, encDoubles(0, 0, 0, r.Bound.Min[0], r.Bound.Max[1], 0))
	if opts.EPSG != 0 {
		// KeyDirectoryVersion 1.1.0, 3 keys: GTModelType=Projected,
		// GTRasterType=PixelIsArea, ProjectedCSType=EPSG.
		add(tagGeoKeyDirectory, dtShort, 16, enc16s(
			1, 1, 0, 3,
			1024, 0, 1, 1,
			1025, 0, 1, 1,
			3072, 0, 1, opts.EPSG,
		))
	}
	if opts.NoData != nil {
		s := strconv.FormatFloat(*opts.NoData, 'f', -1, 64) + "\x00"
		add(tagGDALNoData, dtASCII, uint32(len(s)), []byte(s))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	extOffset := 8 + ifdSize
	ext := new(bytes.Buffer)
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			offsets[i] = uint32(extOffset + ext.Len())
			ext.Write(e.data)
			if ext.Len()%2 == 1 {
				ext.WriteByte(0)
			}
		}
	}
	pixelOffset := uint32(extOffset + ext.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = enc32(pixelOffset)
		}
	}

	out := new(bytes.Buffer)
	out.Write([]byte{'I', 'I', 0x2A, 0x00})
	out.Write(enc32(8))
	out.Write(enc16(uint16(len(entries))))
	for i, e := range entries {
		out.Write(enc16(e.tag))
		out.Write(enc16(e.datatype))
		out.Write(enc32(e.count))
		if len(e.data) > 4 {
			out.Write(enc32(offsets[i]))
		} else {
			var inline [4]byte
			copy(inline[:], e.data)
			out.Write(inline[:])
		}
	}
	out.Write(enc32(0))
	out.Write(ext.Bytes())
	out.Write(pixels)

	_, err := w.Write(out.Bytes())
	return err
}

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc16s(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[2*i:], v)
	}
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func encDoubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}
