// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"player/internal/audio"
	"player/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description              |
|-------------------|----------------|--------------|--------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing |
| Timestamp         | int64          | 8            | Nanoseconds since epoch  |
| PTS               | int64          | 8            | Playback clock in ms     |
| State             | uint8          | 1            | Player state             |
| Queue Length      | uint16         | 2            | Packets waiting          |
| Spectrum PTS      | int64          | 8            | pts of the spectrum      |
| Magnitude Count   | uint16         | 2            | Number of floats (N)     |
| Magnitudes        | []float32      | N * 4        | Spectrum magnitudes      |
+------------------------------------------------------------------------------+
*/

// HeaderSize is the length of a packet without magnitudes.
const HeaderSize = 4 + 8 + 8 + 1 + 2 + 8 + 2

// MaxMagnitudes bounds the spectrum so a packet fits one datagram.
const MaxMagnitudes = (65507 - HeaderSize) / 4

// ErrShortPacket is returned by Decode for truncated input.
var ErrShortPacket = errors.New("short clock packet")

// Transport packs clock updates into datagrams and sends them with a Sender.
type Transport struct {
	sender *Sender
	buf    bytes.Buffer
}

// NewTransport returns a transport sending to targetAddress.
func NewTransport(targetAddress string) (*Transport, error) {
	s, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Transport{sender: s}, nil
}

// Send encodes u and transmits it as a single datagram.
func (t *Transport) Send(u *transport.ClockUpdate) error {
	t.buf.Reset()
	if err := Encode(&t.buf, u); err != nil {
		return err
	}
	return t.sender.Send(t.buf.Bytes())
}

// Close closes the underlying sender.
func (t *Transport) Close() error {
	return t.sender.Close()
}

var _ transport.Transport = (*Transport)(nil)

// Encode writes u in the packet layout above.
func Encode(buf *bytes.Buffer, u *transport.ClockUpdate) error {
	n := len(u.Spectrum)
	if n > MaxMagnitudes {
		n = MaxMagnitudes
	}
	queueLen := min(max(u.QueueLen, 0), math.MaxUint16)

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], u.Seq)
	binary.BigEndian.PutUint64(hdr[4:], uint64(u.Timestamp))
	binary.BigEndian.PutUint64(hdr[12:], uint64(u.PTS))
	hdr[20] = uint8(u.State)
	binary.BigEndian.PutUint16(hdr[21:], uint16(queueLen))
	binary.BigEndian.PutUint64(hdr[23:], uint64(u.SpectrumPTS))
	binary.BigEndian.PutUint16(hdr[31:], uint16(n))
	buf.Write(hdr[:])

	if err := binary.Write(buf, binary.BigEndian, u.Spectrum[:n]); err != nil {
		return fmt.Errorf("pack magnitudes: %w", err)
	}
	return nil
}

// Decode parses a datagram produced by Encode. Decoded is not carried on
// the wire and is left zero.
func Decode(b []byte) (*transport.ClockUpdate, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	u := &transport.ClockUpdate{
		Seq:         binary.BigEndian.Uint32(b[0:]),
		Timestamp:   int64(binary.BigEndian.Uint64(b[4:])),
		PTS:         int64(binary.BigEndian.Uint64(b[12:])),
		State:       audio.State(b[20]),
		QueueLen:    int(binary.BigEndian.Uint16(b[21:])),
		SpectrumPTS: int64(binary.BigEndian.Uint64(b[23:])),
	}
	n := int(binary.BigEndian.Uint16(b[31:]))
	body := b[HeaderSize:]
	if len(body) < n*4 {
		return nil, fmt.Errorf("%w: want %d magnitudes, have %d bytes", ErrShortPacket, n, len(body))
	}
	if n > 0 {
		u.Spectrum = make([]float32, n)
		for i := range n {
			u.Spectrum[i] = math.Float32frombits(binary.BigEndian.Uint32(body[i*4:]))
		}
	}
	return u, nil
}
