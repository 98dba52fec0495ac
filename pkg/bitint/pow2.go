/*
Package bitint provides the power-of-two helpers used when sizing device
buffers, resampler tables and spectrum windows.

Both functions run in constant time without allocating, so they are safe to
call from the playback loop.

	frames := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(frames)     // true

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map onto themselves: for 8 (0b1000), 8-1 = 0b0111 has a bit
length of 3 and 1<<3 = 8. Without the subtraction the result would be 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0
// return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so clearing the lowest set bit (n & (n-1)) leaves
// zero only for powers of two.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
