// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/companyzero/gopus"
	"github.com/go-audio/audio"
)

// Decoder turns one compressed packet into interleaved samples. The
// returned buffer is owned by the decoder and is only valid until the next
// call to Decode.
type Decoder interface {
	Decode(pkt *Packet) (*audio.IntBuffer, error)
	// Format returns the sample rate and channel count Decode produces.
	Format() *audio.Format
	Close() error
}

// opusFrameDecoder is the subset of *gopus.Decoder used here.
type opusFrameDecoder interface {
	Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error)
}

var newOpusFrameDecoder = func(sampleRate, channels int) (opusFrameDecoder, error) {
	return gopus.NewDecoder(sampleRate, channels)
}

// opusMaxFrameMS is the longest frame an opus packet can carry.
const opusMaxFrameMS = 120

// NewDecoder returns a decoder for the codec described by params.
func NewDecoder(params CodecParameters) (Decoder, error) {
	if params.SampleRate <= 0 || params.Channels <= 0 {
		return nil, fmt.Errorf("invalid stream format %d Hz, %d channels",
			params.SampleRate, params.Channels)
	}

	format := &audio.Format{
		NumChannels: params.Channels,
		SampleRate:  params.SampleRate,
	}

	switch params.Codec {
	case CodecPCMS16LE:
		return &pcmDecoder{format: format, width: 2}, nil
	case CodecPCMF32LE:
		return &pcmDecoder{format: format, width: 4, float: true}, nil
	case CodecOpus:
		d, err := newOpusDecoder(params, format)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, params.Codec)
	}
}

// pcmDecoder handles interleaved little endian PCM.
type pcmDecoder struct {
	format *audio.Format
	width  int // bytes per sample
	float  bool
	buf    audio.IntBuffer
}

func (d *pcmDecoder) Format() *audio.Format { return d.format }

func (d *pcmDecoder) Close() error { return nil }

func (d *pcmDecoder) Decode(pkt *Packet) (*audio.IntBuffer, error) {
	frameBytes := d.width * d.format.NumChannels
	if len(pkt.Data) == 0 || len(pkt.Data)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d byte frames",
			ErrDecode, len(pkt.Data), frameBytes)
	}

	n := len(pkt.Data) / d.width
	if cap(d.buf.Data) < n {
		d.buf.Data = make([]int, n)
	}
	data := d.buf.Data[:n]

	if d.float {
		for i := range data {
			f := math.Float32frombits(binary.LittleEndian.Uint32(pkt.Data[i*4:]))
			data[i] = floatToInt16(float64(f))
		}
	} else {
		for i := range data {
			data[i] = int(int16(binary.LittleEndian.Uint16(pkt.Data[i*2:])))
		}
	}

	d.buf.Data = data
	d.buf.Format = d.format
	d.buf.SourceBitDepth = 16
	return &d.buf, nil
}

// opusDecoder wraps libopus.
type opusDecoder struct {
	dec       opusFrameDecoder
	format    *audio.Format
	frameSize int
	pcm       []int16
	buf       audio.IntBuffer
}

func newOpusDecoder(params CodecParameters, format *audio.Format) (*opusDecoder, error) {
	switch params.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("opus does not support %d Hz", params.SampleRate)
	}
	if params.Channels > 2 {
		return nil, fmt.Errorf("opus does not support %d channels", params.Channels)
	}

	dec, err := newOpusFrameDecoder(params.SampleRate, params.Channels)
	if err != nil {
		return nil, err
	}

	frameSize := params.FrameSize
	if frameSize <= 0 {
		frameSize = params.SampleRate * opusMaxFrameMS / 1000
	}
	return &opusDecoder{
		dec:       dec,
		format:    format,
		frameSize: frameSize,
		pcm:       make([]int16, frameSize*params.Channels),
	}, nil
}

func (d *opusDecoder) Format() *audio.Format { return d.format }

func (d *opusDecoder) Close() error {
	d.dec = nil
	return nil
}

func (d *opusDecoder) Decode(pkt *Packet) (*audio.IntBuffer, error) {
	pcm, err := d.dec.Decode(pkt.Data, d.frameSize, false, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty opus frame", ErrDecode)
	}

	if cap(d.buf.Data) < len(pcm) {
		d.buf.Data = make([]int, len(pcm))
	}
	data := d.buf.Data[:len(pcm)]
	for i, s := range pcm {
		data[i] = int(s)
	}

	d.buf.Data = data
	d.buf.Format = d.format
	d.buf.SourceBitDepth = 16
	return &d.buf, nil
}

// floatToInt16 scales a [-1, 1] sample to the int16 range, clamping.
func floatToInt16(f float64) int {
	if f != f { // NaN
		return 0
	}
	v := math.Round(f * math.MaxInt16)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int(v)
}

// clampInt16 saturates v to the int16 range.
func clampInt16(v int) int {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return v
}
