package vm

import "fmt"

// Op is a decoded instruction class. Every byte decodes to exactly one Op.
type Op uint8

const (
	OpReserved Op = iota
	OpDivide
	OpCheck
	OpShare
	OpForce
	OpFuse
	OpDrain
	OpClone
	OpReduce
	OpFlip
	OpGetAlpha
	OpGetPhi
	OpJmpc
	OpJmpa
	OpJmpr
	OpMovi
	OpInspect
	OpNot
	OpSwap
	OpAnd
	OpOr
	OpAdd
	OpMov
	OpSt
	OpLd
	OpNearby

	numOps
)

var opNames = [numOps]string{
	OpReserved: "rsv",
	OpDivide:   "divide",
	OpCheck:    "check",
	OpShare:    "share",
	OpForce:    "force",
	OpFuse:     "fuse",
	OpDrain:    "drain",
	OpClone:    "clone",
	OpReduce:   "reduce",
	OpFlip:     "flip",
	OpGetAlpha: "get-alpha",
	OpGetPhi:   "get-phi",
	OpJmpc:     "jmpc",
	OpJmpa:     "jmpa",
	OpJmpr:     "jmpr",
	OpMovi:     "movi",
	OpInspect:  "inspect",
	OpNot:      "not",
	OpSwap:     "swap",
	OpAnd:      "and",
	OpOr:       "or",
	OpAdd:      "add",
	OpMov:      "mov",
	OpSt:       "st",
	OpLd:       "ld",
	OpNearby:   "nearby",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// decodeTable is filled once from the byte ranges below.
var decodeTable = buildDecodeTable()

func buildDecodeTable() [256]Op {
	var t [256]Op
	for i := 0; i < 256; i++ {
		t[i] = decodeRange(byte(i))
	}
	return t
}

func decodeRange(inst byte) Op {
	switch {
	case inst < 0x04:
		return OpDivide
	case inst < 0x08:
		return OpCheck
	case inst < 0x0c:
		return OpShare
	case inst < 0x14:
		return OpForce
	case inst < 0x1c:
		return OpFuse
	case inst < 0x20:
		return OpReserved
	case inst == 0x20:
		return OpDrain
	case inst == 0x21:
		return OpClone
	case inst == 0x22:
		return OpReduce
	case inst == 0x23:
		return OpFlip
	case inst == 0x24:
		return OpGetAlpha
	case inst == 0x25:
		return OpGetPhi
	case inst < 0x28:
		return OpReserved
	// 0x28-0x2f would otherwise be reserved; it carries jmpc so the scan jump has a slot
	// alongside jmpa and jmpr.
	case inst < 0x30:
		return OpJmpc
	case inst < 0x3f:
		return OpJmpa
	case inst == 0x3f:
		return OpJmpr
	case inst < 0x80:
		return OpMovi
	case inst < 0x84:
		return OpInspect
	case inst < 0x88:
		return OpNot
	case inst < 0x8c:
		return OpSwap
	case inst < 0x90:
		return OpReserved
	case inst < 0xa0:
		return OpAnd
	case inst < 0xb0:
		return OpOr
	case inst < 0xc0:
		return OpAdd
	case inst < 0xd0:
		return OpMov
	case inst < 0xe0:
		return OpSt
	case inst < 0xf0:
		return OpLd
	default:
		return OpNearby
	}
}

// Decode maps an instruction byte to its Op.
func Decode(inst byte) Op { return decodeTable[inst] }

// Operands splits the register selectors out of an instruction byte.
func Operands(inst byte) (dst, src uint8) {
	return inst & 3, (inst >> 2) & 3
}

// Disassemble renders one instruction for debugging output.
func Disassemble(inst byte) string {
	dst, src := Operands(inst)
	op := Decode(inst)
	switch op {
	case OpReserved, OpDrain, OpClone, OpReduce, OpFlip, OpGetAlpha, OpGetPhi:
		return op.String()
	case OpMovi:
		return fmt.Sprintf("movi r%d, %d", dst, (inst>>2)&0xf)
	case OpJmpc, OpJmpa, OpJmpr:
		if src&1 == 0 {
			return fmt.Sprintf("%s r%d", op, dst)
		}
		return fmt.Sprintf("%s.c r%d", op, dst)
	case OpAnd, OpOr, OpAdd, OpMov, OpSt, OpLd, OpNearby:
		return fmt.Sprintf("%s r%d, r%d", op, dst, src)
	default:
		return fmt.Sprintf("%s r%d", op, dst)
	}
}
