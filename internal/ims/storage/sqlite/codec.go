package sqlite

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l2traces"
	"github.com/banshee-data/mobility.report/internal/ims/l4features"
)

// Series blob layout, little endian, zstd compressed as a whole:
//
//	magic   [4]byte "IMS1"
//	points  uint32
//	bins    uint32
//	width   float64
//	points x (mz, intensity, mobility, rt float64; scan index, frame uint32)
//	bins   x (centre, intensity float64)
//
// The checksum is xxhash64 of the uncompressed bytes.
var seriesMagic = [4]byte{'I', 'M', 'S', '1'}

const (
	seriesHeaderSize = 4 + 4 + 4 + 8
	seriesPointSize  = 4*8 + 2*4
	seriesBinSize    = 2 * 8
)

// ErrSeriesChecksum is returned when a stored series does not match its
// checksum.
var ErrSeriesChecksum = errors.New("series blob checksum mismatch")

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

// encodeSeries serialises ts and returns the compressed blob with the
// checksum of its uncompressed form.
func encodeSeries(ts *l4features.IonMobilogramTimeSeries) (blob []byte, checksum uint64) {
	points := ts.Points()
	summed := ts.Summed

	raw := make([]byte, seriesHeaderSize+len(points)*seriesPointSize+len(summed.Intensities)*seriesBinSize)
	copy(raw, seriesMagic[:])
	binary.LittleEndian.PutUint32(raw[4:], uint32(len(points)))
	binary.LittleEndian.PutUint32(raw[8:], uint32(len(summed.Intensities)))
	putFloat(raw[12:], summed.BinWidth)

	off := seriesHeaderSize
	for _, p := range points {
		putFloat(raw[off:], p.MZ)
		putFloat(raw[off+8:], p.Intensity)
		putFloat(raw[off+16:], p.Mobility)
		putFloat(raw[off+24:], p.RetentionTime)
		binary.LittleEndian.PutUint32(raw[off+32:], uint32(p.ScanIndex))
		binary.LittleEndian.PutUint32(raw[off+36:], uint32(p.FrameNumber))
		off += seriesPointSize
	}
	for i := range summed.Intensities {
		putFloat(raw[off:], summed.Mobilities[i])
		putFloat(raw[off+8:], summed.Intensities[i])
		off += seriesBinSize
	}

	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)
	return encoder.EncodeAll(raw, nil), xxhash.Sum64(raw)
}

// decodeSeries reverses encodeSeries and verifies checksum.
func decodeSeries(blob []byte, checksum uint64) (*l4features.IonMobilogramTimeSeries, error) {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	if xxhash.Sum64(raw) != checksum {
		return nil, ErrSeriesChecksum
	}
	if len(raw) < seriesHeaderSize || [4]byte(raw[:4]) != seriesMagic {
		return nil, fmt.Errorf("series blob: bad header")
	}

	nPoints := int(binary.LittleEndian.Uint32(raw[4:]))
	nBins := int(binary.LittleEndian.Uint32(raw[8:]))
	if want := seriesHeaderSize + nPoints*seriesPointSize + nBins*seriesBinSize; len(raw) != want {
		return nil, fmt.Errorf("series blob: %d bytes, want %d", len(raw), want)
	}

	series := l2traces.Series{Points: make([]l1frames.DataPoint, nPoints)}
	off := seriesHeaderSize
	for i := range series.Points {
		series.Points[i] = l1frames.DataPoint{
			MZ:            getFloat(raw[off:]),
			Intensity:     getFloat(raw[off+8:]),
			Mobility:      getFloat(raw[off+16:]),
			RetentionTime: getFloat(raw[off+24:]),
			ScanIndex:     int(binary.LittleEndian.Uint32(raw[off+32:])),
			FrameNumber:   int(binary.LittleEndian.Uint32(raw[off+36:])),
		}
		off += seriesPointSize
	}

	summed := l4features.SummedMobilogram{
		BinWidth:    getFloat(raw[12:]),
		Mobilities:  make([]float64, nBins),
		Intensities: make([]float64, nBins),
	}
	for i := 0; i < nBins; i++ {
		summed.Mobilities[i] = getFloat(raw[off:])
		summed.Intensities[i] = getFloat(raw[off+8:])
		off += seriesBinSize
	}

	return &l4features.IonMobilogramTimeSeries{
		Mobilograms: l4features.SplitMobilograms(series),
		Summed:      summed,
	}, nil
}

func putFloat(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func getFloat(b []byte) float64    { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
