// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owuart implements a 1-wire bus master on top of a general purpose
// UART wired in half-duplex mode.
//
// The UART TX and RX lines are tied to the 1-wire data line (open drain or
// through a diode and a pull-up resistor) so every character sent is read
// back. Each 1-wire time slot is one UART character at 115200 bps: a 0xFF
// character only drives the start bit low and leaves the line free for a
// device to pull it low, a 0x00 character holds the line low for the whole
// slot. The reset pulse is a 0xF0 character at 9600 bps, whose start bit
// plus four low data bits last 520µs; devices answering with a presence pulse
// clear some of the high bits of the echoed character.
//
// Dev implements periph.io/x/conn/v3/onewire.Bus so periph device drivers can
// be used on it, with two restrictions: ROM search is not supported and a
// strong pull-up cannot be produced.
//
// Datasheet
//
// https://www.analog.com/en/resources/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
package owuart
