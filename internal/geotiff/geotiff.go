// Package geotiff reads and writes the single-band GeoTIFF rasters produced by
// the prediction backend.
//
// Pixel decoding is delegated to golang.org/x/image/tiff. The georeferencing
// tags (ModelPixelScale, ModelTiepoint, GDAL_NODATA) are not exposed by that
// package, so the first IFD is walked here to recover the bounding box.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

// TIFF field types.
const (
	dtByte   = 1
	dtASCII  = 2
	dtShort  = 3
	dtLong   = 4
	dtDouble = 12
)

// Tags read or written by this package.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagGeoKeyDirectory           = 34735
	tagGDALNoData                = 42113
)

const photometricWhiteIsZero = 0

var (
	ErrNotTIFF     = errors.New("geotiff: not a TIFF file")
	ErrNoGeoKeys   = errors.New("geotiff: missing ModelPixelScale/ModelTiepoint tags")
	ErrUnsupported = errors.New("geotiff: unsupported layout")
)

// Raster is one decoded band with its geographic extent.
type Raster struct {
	Width  int
	Height int
	// Bound is the extent of the raster in its native CRS.
	Bound orb.Bound
	// Values holds band 0 in row-major order.
	Values []uint16
	// NoData is the GDAL_NODATA value when the file declares one.
	NoData    float64
	HasNoData bool
}

// At returns the band value at column x, row y.
func (r *Raster) At(x, y int) uint16 {
	return r.Values[y*r.Width+x]
}

type geoTags struct {
	scale     []float64
	tiepoint  []float64
	noData    string
	hasNoData bool
}

// Decode parses a GeoTIFF held in memory.
func Decode(data []byte) (*Raster, error) {
	tags, err := readGeoTags(data)
	if err != nil {
		return nil, err
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("geotiff: decoding pixels: %w", err)
	}

	b := img.Bounds()
	r := &Raster{
		Width:  b.Dx(),
		Height: b.Dy(),
		Values: make([]uint16, b.Dx()*b.Dy()),
	}
	if err := readBand(img, r.Values); err != nil {
		return nil, err
	}

	if len(tags.scale) < 2 || len(tags.tiepoint) < 6 {
		return nil, ErrNoGeoKeys
	}
	sx, sy := tags.scale[0], tags.scale[1]
	// Tiepoint maps raster (i, j) to model (x, y).
	originX := tags.tiepoint[3] - tags.tiepoint[0]*sx
	originY := tags.tiepoint[4] + tags.tiepoint[1]*sy
	r.Bound = orb.Bound{
		Min: orb.Point{originX, originY - float64(r.Height)*sy},
		Max: orb.Point{originX + float64(r.Width)*sx, originY},
	}

	if tags.hasNoData {
		v, err := strconv.ParseFloat(strings.TrimSpace(tags.noData), 64)
		if err == nil {
			r.NoData, r.HasNoData = v, true
		}
	}
	return r, nil
}

func readBand(img image.Image, out []uint16) error {
	b := img.Bounds()
	w := b.Dx()
	switch m := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				out[y*w+x] = uint16(v)
			}
		}
	case *image.Paletted:
		for y := 0; y < b.Dy(); y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				out[y*w+x] = uint16(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = m.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
	default:
		return fmt.Errorf("%w: pixel model %T", ErrUnsupported, img)
	}
	return nil
}

func readGeoTags(d []byte) (geoTags, error) {
	var tags geoTags
	if len(d) < 8 {
		return tags, ErrNotTIFF
	}
	var bo binary.ByteOrder
	switch string(d[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return tags, ErrNotTIFF
	}
	if bo.Uint16(d[2:4]) != 42 {
		// 43 is BigTIFF.
		return tags, fmt.Errorf("%w: version %d", ErrUnsupported, bo.Uint16(d[2:4]))
	}

	off := int(bo.Uint32(d[4:8]))
	if off+2 > len(d) {
		return tags, fmt.Errorf("%w: IFD offset out of range", ErrNotTIFF)
	}
	n := int(bo.Uint16(d[off : off+2]))
	for i := 0; i < n; i++ {
		e := off + 2 + i*12
		if e+12 > len(d) {
			return tags, fmt.Errorf("%w: truncated IFD", ErrNotTIFF)
		}
		tag := bo.Uint16(d[e : e+2])
		typ := bo.Uint16(d[e+2 : e+4])
		count := int(bo.Uint32(d[e+4 : e+8]))

		switch tag {
		case tagModelPixelScale, tagModelTiepoint:
			if typ != dtDouble {
				return tags, fmt.Errorf("%w: tag %d type %d", ErrUnsupported, tag, typ)
			}
			raw, err := entryData(d, bo, e, count*8)
			if err != nil {
				return tags, err
			}
			vals := make([]float64, count)
			for j := range vals {
				vals[j] = math.Float64frombits(bo.Uint64(raw[j*8:]))
			}
			if tag == tagModelPixelScale {
				tags.scale = vals
			} else {
				tags.tiepoint = vals
			}
		case tagPhotometricInterpretation:
			// x/image/tiff inverts WhiteIsZero samples, which would remap
			// class values.
			if typ == dtShort && count == 1 && bo.Uint16(d[e+8:e+10]) == photometricWhiteIsZero {
				return tags, fmt.Errorf("%w: WhiteIsZero photometric interpretation", ErrUnsupported)
			}
		case tagGDALNoData:
			raw, err := entryData(d, bo, e, count)
			if err != nil {
				return tags, err
			}
			tags.noData = strings.TrimRight(string(raw), "\x00")
			tags.hasNoData = true
		}
	}
	return tags, nil
}

// entryData returns the value bytes of the IFD entry at e, inline or at its
// offset.
func entryData(d []byte, bo binary.ByteOrder, e, size int) ([]byte, error) {
	if size <= 4 {
		return d[e+8 : e+8+size], nil
	}
	off := int(bo.Uint32(d[e+8 : e+12]))
	if off < 0 || off+size > len(d) {
		return nil, fmt.Errorf("%w: tag data out of range", ErrNotTIFF)
	}
	return d[off : off+size], nil
}
