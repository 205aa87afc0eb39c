// cmd/bootloader is the dual-bank bootloader image: it runs bootseq's
// five-step boot decision against the same flash layout cmd/trickler
// writes, then jumps into whichever bank was chosen.
package main

import (
	"machine"
	"sync"

	"github.com/opentrickler/trickler-core/bootseq"
	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/internal/boardflash"
	"github.com/opentrickler/trickler-core/model"
	"github.com/opentrickler/trickler-core/updater"
)

// rp2040Jumper relocates the vector table to the start of the chosen
// bank's copy in program flash and branches to its reset handler. The
// actual relocation/branch is inline assembly outside what Go/TinyGo can
// express portably (bootseq.Jumper's doc comment); this stub marks where
// a board-specific implementation plugs in.
type rp2040Jumper struct{}

func (rp2040Jumper) JumpTo(b model.Bank) {
	// Board-specific: SCB->VTOR = bankBase(b); asm branch to reset vector.
	panic("rp2040Jumper.JumpTo not implemented for this board")
}

func main() {
	flashChip := boardflash.Open()
	banks := updater.NewBankStore(flashChip, boardflash.BankStoreLayout, &sync.Mutex{})

	led := hal.NewRGBStatusLED(machine.GP10,
		[3]hal.PWM{machine.PWM1, machine.PWM1, machine.PWM1},
		[3]hal.PWM{machine.PWM2, machine.PWM2, machine.PWM2},
		[3]uint8{0, 1, 2}, [3]uint8{0, 1, 2})

	bank, err := bootseq.Decide(banks)
	if err != nil {
		// Both banks invalid: halt with a visible error signal rather
		// than jumping into unvalidated code.
		led.SetColour(1, hal.ColourOver, hal.ColourOver, true)
		select {}
	}

	var jumper bootseq.Jumper = rp2040Jumper{}
	jumper.JumpTo(bank)
}
