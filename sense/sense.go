// Package sense builds the fixed 18-byte SCSI sense-data payload the
// command dispatcher attaches to CheckCondition responses.
package sense

// Key is the top-level sense key.
type Key byte

const (
	NoSense        Key = 0x00
	NotReady       Key = 0x02
	MediumError    Key = 0x03
	IllegalRequest Key = 0x05
	UnitAttention  Key = 0x06
)

// ASCASCQ bundles the additional sense code and qualifier.
type ASCASCQ struct {
	ASC, ASCQ byte
}

var (
	NoAdditionalSenseInformation   = ASCASCQ{0x00, 0x00}
	NotReadyToReadyChange          = ASCASCQ{0x28, 0x00}
	MediumNotPresent               = ASCASCQ{0x3A, 0x00}
	InvalidCommandOperationCode    = ASCASCQ{0x20, 0x00}
	InvalidFieldInCDB              = ASCASCQ{0x24, 0x00}
	InvalidFieldInParameterList    = ASCASCQ{0x26, 0x00}
	SavingParametersNotSupported   = ASCASCQ{0x39, 0x00}
	CommandSequenceError           = ASCASCQ{0x2C, 0x00}
	IllegalModeForThisTrack        = ASCASCQ{0x64, 0x00}
	UnrecoveredReadError           = ASCASCQ{0x11, 0x00}
	MediumRemovalPrevented         = ASCASCQ{0x53, 0x02}
	CannotReadMediumIncompatFormat = ASCASCQ{0x30, 0x05}
)

// Sense is one command-level failure, carrying enough to build the 18-byte
// payload and, for ILI, the four-byte information field.
type Sense struct {
	Key         Key
	Code        ASCASCQ
	ILI         bool
	CommandInfo uint32
}

// New builds a Sense from a key and code, no ILI.
func New(key Key, code ASCASCQ) *Sense {
	return &Sense{Key: key, Code: code}
}

func (s *Sense) Error() string {
	return "sense: key=" + keyName(s.Key)
}

func keyName(k Key) string {
	switch k {
	case NoSense:
		return "NO_SENSE"
	case NotReady:
		return "NOT_READY"
	case MediumError:
		return "MEDIUM_ERROR"
	case IllegalRequest:
		return "ILLEGAL_REQUEST"
	case UnitAttention:
		return "UNIT_ATTENTION"
	default:
		return "UNKNOWN"
	}
}

// Bytes renders the fixed 18-byte sense payload: response code 0x70,
// additional sense length 0x0A.
func (s *Sense) Bytes() [18]byte {
	var b [18]byte
	b[0] = 0x70
	if s.ILI {
		b[2] = byte(s.Key) | 0x20
		b[3] = byte(s.CommandInfo >> 24)
		b[4] = byte(s.CommandInfo >> 16)
		b[5] = byte(s.CommandInfo >> 8)
		b[6] = byte(s.CommandInfo)
	} else {
		b[2] = byte(s.Key)
	}
	b[7] = 0x0A
	b[12] = s.Code.ASC
	b[13] = s.Code.ASCQ
	return b
}
