// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

const (
	// Logic1 is the character sent for a 1 bit or a read slot: only the start
	// bit is low, ~8.7µs at 115200 bps.
	Logic1 byte = 0xFF
	// Logic0 is the character sent for a 0 bit: start bit and 8 data bits
	// low, ~78µs at 115200 bps.
	Logic0 byte = 0x00
	// ResetPulse is the character sent at the reset rate: start bit and 4
	// data bits low, 5 * 104µs = 520µs at 9600 bps.
	ResetPulse byte = 0xF0
)

// EncodeByte returns the 8 characters that transmit b, least significant bit
// first.
func EncodeByte(b byte) [8]byte {
	var slots [8]byte
	for i := range slots {
		if (b>>uint(i))&1 == 1 {
			slots[i] = Logic1
		} else {
			slots[i] = Logic0
		}
	}
	return slots
}

// DecodeSlots rebuilds a byte from the 8 characters read back from the bus,
// least significant bit first.
//
// A slot reads as 1 only when the character came back untouched as Logic1.
// Anything else means the line was held low during the sampling window, by
// the master or by a device.
func DecodeSlots(slots [8]byte) byte {
	var b byte
	for i, c := range slots {
		if c == Logic1 {
			b |= 1 << uint(i)
		}
	}
	return b
}
