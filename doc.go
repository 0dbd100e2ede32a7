// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uartwire is a container for a 1-wire bus master built on a plain
// half-duplex UART and the drivers and tools layered on top of it.
//
// The bus transport lives in owuart, serial bindings in serialport and the
// DS18B20 thermometer driver in ds18b20.
package uartwire
