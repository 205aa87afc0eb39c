// Package boardflash adapts a tinygo.org/x/drivers/flash SPI NOR device
// -- the dedicated firmware/config flash chip both cmd/trickler and
// cmd/bootloader talk to on SPI1 -- to hal.Flash's offset/sector
// contract. The RP2040's own program flash is not safe to erase/rewrite
// from code running out of it, hence the external chip.
package boardflash

import (
	"machine"

	"tinygo.org/x/drivers/flash"

	"github.com/opentrickler/trickler-core/store"
	"github.com/opentrickler/trickler-core/updater"
)

// SCK/SDO/SDI/CS pins for the external flash chip, shared by both build
// outputs so their flash layouts stay addressable from the same offsets.
const (
	SCKPin = machine.GP14
	SDOPin = machine.GP15
	SDIPin = machine.GP12
	CSPin  = machine.GP13
)

type Device struct {
	dev *flash.Device
}

// Open configures SPI1 and returns the flash device. Call once per image.
func Open() *Device {
	machine.SPI1.Configure(machine.SPIConfig{Frequency: 8_000_000, SCK: SCKPin, SDO: SDOPin, SDI: SDIPin})
	dev := flash.NewSPI(machine.SPI1, SDOPin, SDIPin, SCKPin, CSPin)
	dev.Configure(&flash.DeviceConfig{Identifier: flash.DefaultDeviceIdentifier})
	return &Device{dev: dev}
}

func (f *Device) ReadAt(offset uint32, buf []byte) error {
	_, err := f.dev.ReadAt(buf, int64(offset))
	return err
}

func (f *Device) WriteAt(offset uint32, data []byte) error {
	_, err := f.dev.WriteAt(data, int64(offset))
	return err
}

func (f *Device) EraseSector(offset, size uint32) error {
	return f.dev.EraseSectors(int64(offset)/flash.SectorSize, int64(size)/flash.SectorSize)
}

func (f *Device) SectorSize() uint32 { return flash.SectorSize }

// BankCapacity, BankStoreLayout and ConfigLayout are the flash-region
// contract both images share; the bootloader must agree with the
// application on where banks and metadata live.
const BankCapacity = 512 * 1024

var BankStoreLayout = updater.Layout{
	BankBase:     [2]uint32{0, BankCapacity},
	BankCapacity: BankCapacity,
	MetaSectorA:  2 * BankCapacity,
	MetaSectorB:  2*BankCapacity + 4096,
}

var ConfigLayout = store.Layout{
	WiFiOffset:          2*BankCapacity + 8192,
	ProfilesOffset:      2*BankCapacity + 8192 + 4096,
	ChargeConfigOffset:  2*BankCapacity + 8192 + 2*4096,
	TuningHistoryOffset: 2*BankCapacity + 8192 + 3*4096,
	DisplayOffset:       2*BankCapacity + 8192 + 4*4096,
	RegionSize:          4096,
}
