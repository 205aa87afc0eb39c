package model

// Bank identifies one of the two equally-sized flash regions holding a
// complete, independently bootable firmware image.
type Bank int

const (
	BankA Bank = iota
	BankB
)

func (b Bank) String() string {
	if b == BankA {
		return "A"
	}
	return "B"
}

// Opposite returns the other bank.
func (b Bank) Opposite() Bank {
	if b == BankA {
		return BankB
	}
	return BankA
}

// ValidFlag is a bank's validation state.
type ValidFlag int

const (
	BankInvalid ValidFlag = iota
	BankValid
)

// BankMetadata is the per-bank portion of the firmware metadata record.
type BankMetadata struct {
	CRC32     uint32
	Size      uint32
	BootCount uint32
	Version   string
	Valid     ValidFlag
}

// UpdateState tags whether an update is in progress and, if so, which bank
// it targets.
type UpdateState int

const (
	UpdateNone UpdateState = iota
	UpdateInProgress
)

// FirmwareMetadata is persisted in two flash sectors with alternating
// sequence numbers; the reader scans both and picks the latest valid one.
type FirmwareMetadata struct {
	ActiveBank   Bank
	Banks        [2]BankMetadata // indexed by Bank
	UpdateState  UpdateState
	UpdateTarget Bank

	RollbackOccurred bool

	SequenceNumber uint32
	SelfCRC32      uint32
}

func (m FirmwareMetadata) Bank(b Bank) BankMetadata { return m.Banks[b] }

func (m *FirmwareMetadata) SetBank(b Bank, bm BankMetadata) { m.Banks[b] = bm }

// MaxBootAttempts is the boot-count ceiling that triggers a rollback.
const MaxBootAttempts = 3

// ConfigMagic is the magic word every persisted config region starts with.
const ConfigMagic uint32 = 0x57494649

// WiFiAuthMethod is carried as an opaque integer; WiFi association
// itself is board code, not controller code.
type WiFiAuthMethod uint32

// WiFiConfig is the persisted home_ssid/home_password region.
type WiFiConfig struct {
	HomeSSID     string // max 32 chars + NUL, matches home_ssid[33]
	HomePassword string // max 63 chars + NUL, matches home_password[64]
	AuthMethod   WiFiAuthMethod
	TimeoutMS    uint32
	Enabled      bool
}

// DisplayConfig is the persisted display type/rotation/brightness
// region.
type DisplayConfig struct {
	Type        uint32
	RotationDeg uint32
	Brightness  uint32
}
