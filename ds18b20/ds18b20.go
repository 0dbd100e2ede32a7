// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 controls Dallas Semi / Maxim DS18B20 and DS18S20
// thermometers on a 1-wire bus.
//
// A sensor alone on its bus can be used with NewSingle, which addresses it
// with the broadcast Skip ROM command and works on bus masters that cannot
// search the bus, like owuart.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
package ds18b20

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

const DS18B20 Family = 0x28
const DS18S20 Family = 0x10

// Function commands, datasheet p.11.
const (
	cmdConvert         = 0x44
	cmdReadScratchpad  = 0xbe
	cmdWriteScratchpad = 0x4e
	cmdCopyScratchpad  = 0x48
)

// ROM commands.
const (
	cmdSkipROM = 0xcc
	cmdReadROM = 0x33
)

// ConvertAll performs a conversion on all DS18B20 devices on the bus.
//
// During the conversion it places the bus in strong pull-up mode to power
// parasitic devices and returns when the conversions have completed. This time
// period is determined by the maximum resolution of all devices on the bus and
// must be provided.
//
// ConvertAll uses time.Sleep to wait for the conversion to finish, which takes
// from 94ms to 752ms.
func ConvertAll(o onewire.Bus, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18b20: invalid maxResolutionBits")
	}
	if err := StartAll(o); err != nil {
		return err
	}
	sleep(conversionTime(maxResolutionBits))
	return nil
}

// StartAll starts a conversion on all DS18B20 devices on the bus.
// Similar to ConvertAll but returns without waiting for conversion to finish.
// To be used in conjunction with LastTemp() function. Conversion timing must be
// handled by other means.
func StartAll(o onewire.Bus) error {
	return o.Tx([]byte{cmdSkipROM, cmdConvert}, nil, onewire.StrongPullup)
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor
// with the specified 64-bit address.
//
// resolutionBits must be in the range 9..12 and determines how many bits of
// precision the readings have. The resolution affects the conversion time:
// 9bits:94ms, 10bits:188ms, 11bits:375ms, 12bits:750ms.
//
// A resolution of 10 bits corresponds to 0.25C and tends to be a good
// compromise between conversion time and the device's inherent accuracy of
// +/-0.5C.
func New(o onewire.Bus, addr onewire.Address, resolutionBits int) (*Dev, error) {
	if resolutionBits < 9 || resolutionBits > 12 {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}
	d := &Dev{bus: o, addr: addr, resolution: resolutionBits}
	if err := d.configure(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSingle returns an object that communicates with the only device on the
// bus, addressing it with Skip ROM.
//
// The device address is read with Read ROM to identify its family. If more
// than one device is on the bus their answers collide and the CRC check
// fails.
func NewSingle(o onewire.Bus, resolutionBits int) (*Dev, error) {
	if resolutionBits < 9 || resolutionBits > 12 {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}
	var rom [8]byte
	if err := o.Tx([]byte{cmdReadROM}, rom[:], onewire.WeakPullup); err != nil {
		return nil, err
	}
	if !onewire.CheckCRC(rom[:]) {
		return nil, busError("ds18b20: incorrect ROM CRC, is the device alone on the bus?")
	}
	addr := onewire.Address(binary.LittleEndian.Uint64(rom[:]))
	switch f := Family(rom[0]); f {
	case DS18B20, DS18S20:
	default:
		return nil, fmt.Errorf("ds18b20: unsupported family code %#02x", byte(f))
	}
	d := &Dev{bus: o, addr: addr, single: true, resolution: resolutionBits}
	if err := d.configure(); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	bus        onewire.Bus
	addr       onewire.Address
	single     bool // addressed with Skip ROM
	resolution int  // resolution in bits (9..12)

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) Family() Family {
	return Family(d.addr & 0xFF)
}

// Addr returns the 64-bit address of the device.
func (d *Dev) Addr() onewire.Address {
	return d.addr
}

func (d *Dev) String() string {
	return d.Family().String() + "{" + (&onewire.Dev{Bus: d.bus, Addr: d.addr}).String() + "}"
}

// Halt implements conn.Resource.
//
// It stops a continuous sensing started with SenseContinuous.
func (d *Dev) Halt() error {
	d.mu.Lock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

// Convert starts a conversion on this device and waits for it to finish.
//
// The result is read with LastTemp or RawTemp.
func (d *Dev) Convert() error {
	if err := d.tx([]byte{cmdConvert}, nil, onewire.StrongPullup); err != nil {
		return err
	}
	sleep(conversionTime(d.resolution))
	return nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.Convert(); err != nil {
		return err
	}
	t, err := d.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// It converts every interval in a goroutine, which becomes the user of the
// bus until Halt is called. Failed conversions are skipped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < conversionTime(d.resolution) {
		return nil, errors.New("ds18b20: interval shorter than conversion time")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("ds18b20: already sensing continuously")
	}
	d.stop = make(chan struct{})
	env := make(chan physic.Env)
	d.wg.Add(1)
	go d.sensing(interval, env, d.stop)
	return env, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 16
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with ConvertAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	raw, err := d.RawTemp()
	if err != nil {
		return 0, err
	}
	return toTemperature(raw), nil
}

// RawTemp reads the result of the last conversion in 1/16°C units, as the
// DS18B20 reports it.
func (d *Dev) RawTemp() (int16, error) {
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}
	raw := d.rawTemperature(spad)
	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if raw == 85*16 {
		return 0, busError("ds18b20: has not performed a temperature conversion (insufficient pull-up?)")
	}
	return raw, nil
}

//

// configure reads the scratchpad, which tells us whether we can talk to the
// device correctly and how it's configured, and changes the resolution if
// necessary (datasheet p.6).
func (d *Dev) configure() error {
	spad, err := d.readScratchpad()
	if err != nil {
		return err
	}
	if d.Family() == DS18S20 || int(spad[4]>>5) == d.resolution-9 {
		return nil
	}
	// Set the value in the configuration register.
	cfg := []byte{cmdWriteScratchpad, spad[2], spad[3], byte((d.resolution-9)<<5) | 0x1f}
	if err := d.tx(cfg, nil, onewire.WeakPullup); err != nil {
		return err
	}
	// Copy the scratchpad to EEPROM to save the values.
	if err := d.tx([]byte{cmdCopyScratchpad}, nil, onewire.StrongPullup); err != nil {
		return err
	}
	// Wait for the write to complete.
	sleep(10 * time.Millisecond)
	return nil
}

// tx addresses the device and runs a function command.
func (d *Dev) tx(w, r []byte, power onewire.Pullup) error {
	if d.single {
		return d.bus.Tx(append([]byte{cmdSkipROM}, w...), r, power)
	}
	dev := onewire.Dev{Bus: d.bus, Addr: d.addr}
	if power == onewire.StrongPullup {
		return dev.TxPower(w, r)
	}
	return dev.Tx(w, r)
}

// rawTemperature from scratchpad and handle special calculation for DS18S20
func (d *Dev) rawTemperature(spad []byte) int16 {
	// spad[1] is MSB and spad[0] is LSB of the raw temperature value
	rawTemp := int16(spad[1])<<8 | int16(spad[0])

	if d.Family() == DS18S20 && spad[7] != 0 {
		// The DS18S20 reports 0.5°C steps. The count remaining in spad[6]
		// refines it: TEMP_READ - 0.25 + (COUNT_PER_C - COUNT_REMAIN) / COUNT_PER_C
		// with COUNT_PER_C = 16, scaled to 1/16°C.
		rawTemp = ((rawTemp & ^int16(1)) << 3) + 12 - int16(spad[6])
	}
	return rawTemp
}

// toTemperature converts a raw reading, which has 4 fractional bits.
// Datasheet p.4.
func toTemperature(raw int16) physic.Temperature {
	return physic.Temperature(raw)*physic.Kelvin/16 + physic.ZeroCelsius
}

func (d *Dev) sensing(interval time.Duration, env chan<- physic.Env, stop <-chan struct{}) {
	defer d.wg.Done()
	defer close(env)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		var e physic.Env
		if err := d.Sense(&e); err == nil {
			select {
			case env <- e:
			case <-stop:
				return
			}
		}
		select {
		case <-t.C:
		case <-stop:
			return
		}
	}
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// conversionTime is the time a conversion takes, which depends on the
// resolution: 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet
// p.6.
func conversionTime(bits int) time.Duration {
	return (94 << uint(bits-9)) * time.Millisecond
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
// It returns the 8 bytes of scratchpad data (excluding the CRC byte).
func (d *Dev) readScratchpad() ([]byte, error) {
	var spad [9]byte
	if err := d.tx([]byte{cmdReadScratchpad}, spad[:], onewire.WeakPullup); err != nil {
		return nil, err
	}

	if !onewire.CheckCRC(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return nil, busError("ds18b20: incorrect scratchpad CRC")
			}
		}
		return nil, busError("ds18b20: device did not respond")
	}

	return spad[:8], nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
