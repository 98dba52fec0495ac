package audio

import (
	"sync"
	"sync/atomic"
)

// Codec identifies the encoding of a packet's payload.
type Codec string

const (
	CodecPCMS16LE Codec = "pcm_s16le"
	CodecPCMF32LE Codec = "pcm_f32le"
	CodecOpus     Codec = "opus"
)

// CodecParameters describes the stream a packet belongs to. Packets of the
// same stream share one CodecParameters value.
type CodecParameters struct {
	Codec      Codec
	SampleRate int
	Channels   int

	// FrameSize is the number of samples per channel carried by one packet.
	// It is informational for PCM; for opus it bounds the decode buffer and
	// defaults to 120ms worth of samples when zero.
	FrameSize int
}

// Packet is one compressed unit of audio. The queue owns it between Push and
// Pop, after which the consumer owns it and must call Release.
type Packet struct {
	Data   []byte
	PTS    int64 // presentation time in milliseconds
	Params *CodecParameters

	pool     *PacketPool
	released atomic.Bool
}

// NewPacket returns an unpooled packet wrapping data.
func NewPacket(data []byte, pts int64, params *CodecParameters) *Packet {
	return &Packet{Data: data, PTS: pts, Params: params}
}

// Release returns the payload buffer to its pool. Calling it more than once
// is harmless.
func (p *Packet) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	if p.pool != nil {
		p.pool.put(p.Data)
	}
	p.Data = nil
}

// Released reports whether Release has been called.
func (p *Packet) Released() bool {
	return p.released.Load()
}

// PacketPool recycles packet payload buffers. It also tracks how many
// packets it handed out that have not been released yet.
type PacketPool struct {
	buffers sync.Pool
	live    atomic.Int64
}

// NewPacketPool creates a pool whose fresh buffers have sizeHint capacity.
func NewPacketPool(sizeHint int) *PacketPool {
	if sizeHint < 0 {
		sizeHint = 0
	}
	pp := &PacketPool{}
	pp.buffers.New = func() interface{} {
		b := make([]byte, 0, sizeHint)
		return &b
	}
	return pp
}

// Get copies data into a pooled buffer and returns a packet owning it.
func (pp *PacketPool) Get(data []byte, pts int64, params *CodecParameters) *Packet {
	bp := pp.buffers.Get().(*[]byte)
	buf := append((*bp)[:0], data...)
	pp.live.Add(1)
	return &Packet{Data: buf, PTS: pts, Params: params, pool: pp}
}

// Live returns the number of packets obtained from Get and not yet released.
func (pp *PacketPool) Live() int64 {
	return pp.live.Load()
}

func (pp *PacketPool) put(b []byte) {
	pp.live.Add(-1)
	b = b[:0]
	pp.buffers.Put(&b)
}
