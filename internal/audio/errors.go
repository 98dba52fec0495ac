// SPDX-License-Identifier: MIT
package audio

import "errors"

var (
	// ErrQueueFull is returned by TryPush when the queue is at capacity.
	ErrQueueFull = errors.New("packet queue is full")

	// ErrQueueClosed is returned when pushing to a queue that has been closed.
	ErrQueueClosed = errors.New("packet queue is closed")

	// ErrUnsupportedCodec is returned when no decoder exists for a codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrOpenDecoder, ErrOpenResampler and ErrOpenDevice identify the stage
	// at which Player.Open failed.
	ErrOpenDecoder   = errors.New("failed to open decoder")
	ErrOpenResampler = errors.New("failed to open resampler")
	ErrOpenDevice    = errors.New("failed to open output device")

	// ErrDeviceLost is returned when an output device stops accepting samples.
	ErrDeviceLost = errors.New("output device lost")

	// ErrResample wraps resampler failures on the playback path.
	ErrResample = errors.New("resample failed")

	// ErrDecode wraps per-packet decode failures. These are never fatal.
	ErrDecode = errors.New("decode failed")

	// ErrNotOpen is returned when an operation needs an open player.
	ErrNotOpen = errors.New("player is not open")
)
