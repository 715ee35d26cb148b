package secd

// NOTE: these numeric assignments are the code image ABI; changing
// the order breaks every compiled program.
const (
	opNil byte = iota
	opLdc
	opLd
	opAtom
	opCar
	opCdr
	opCons
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opSel
	opJoin
	opLdf
	opAp
	opRtn
	opDum
	opRap
	opStop
	opCge
	opCgt
	opCeq
	opCne
	opCle
	opClt
	opTsel
)

// opNames covers the full numbering, including the reserved
// comparison slots the engine does not execute.
var opNames = map[byte]string{
	opNil:  "NIL",
	opLdc:  "LDC",
	opLd:   "LD",
	opAtom: "ATOM",
	opCar:  "CAR",
	opCdr:  "CDR",
	opCons: "CONS",
	opAdd:  "ADD",
	opSub:  "SUB",
	opMul:  "MUL",
	opDiv:  "DIV",
	opMod:  "MOD",
	opSel:  "SEL",
	opJoin: "JOIN",
	opLdf:  "LDF",
	opAp:   "AP",
	opRtn:  "RTN",
	opDum:  "DUM",
	opRap:  "RAP",
	opStop: "STOP",
	opCge:  "CGE",
	opCgt:  "CGT",
	opCeq:  "CEQ",
	opCne:  "CNE",
	opCle:  "CLE",
	opClt:  "CLT",
	opTsel: "TSEL",
}

var (
	// opLdcSizeInBytes: 1 for the opcode, 4 for the big-endian
	// integer literal
	opLdcSizeInBytes = 5
	// opLdSizeInBytes: 1 for the opcode, 1 for the frame index, 1
	// for the slot index
	opLdSizeInBytes = 3
	// opSelSizeInBytes: 1 for the opcode, then two 32bit absolute
	// branch targets
	opSelSizeInBytes  = 9
	opTselSizeInBytes = 9
	// opLdfSizeInBytes: 1 for the opcode, 4 for the entry address
	opLdfSizeInBytes = 5
	// opApSizeInBytes: 1 for the opcode, 1 for the arity.  DUM and
	// RAP have the same shape.
	opApSizeInBytes  = 2
	opDumSizeInBytes = 2
	opRapSizeInBytes = 2
	// everything else is the bare opcode
	opPlainSizeInBytes = 1
)

// Instruction is one entry of an assembly program, the unencoded
// counterpart of the byte at an instruction pointer.
type Instruction interface {
	// Name returns the mnemonic of the instruction
	Name() string

	// SizeInBytes returns the encoded size of the instruction
	SizeInBytes() int
}

type INil struct{}

func (INil) Name() string     { return "NIL" }
func (INil) SizeInBytes() int { return opPlainSizeInBytes }

type ILdc struct {
	Value int32
}

func (ILdc) Name() string     { return "LDC" }
func (ILdc) SizeInBytes() int { return opLdcSizeInBytes }

type ILd struct {
	Frame, Slot uint8
}

func (ILd) Name() string     { return "LD" }
func (ILd) SizeInBytes() int { return opLdSizeInBytes }

type IAtom struct{}

func (IAtom) Name() string     { return "ATOM" }
func (IAtom) SizeInBytes() int { return opPlainSizeInBytes }

type ICar struct{}

func (ICar) Name() string     { return "CAR" }
func (ICar) SizeInBytes() int { return opPlainSizeInBytes }

type ICdr struct{}

func (ICdr) Name() string     { return "CDR" }
func (ICdr) SizeInBytes() int { return opPlainSizeInBytes }

type ICons struct{}

func (ICons) Name() string     { return "CONS" }
func (ICons) SizeInBytes() int { return opPlainSizeInBytes }

type IAdd struct{}

func (IAdd) Name() string     { return "ADD" }
func (IAdd) SizeInBytes() int { return opPlainSizeInBytes }

type ISub struct{}

func (ISub) Name() string     { return "SUB" }
func (ISub) SizeInBytes() int { return opPlainSizeInBytes }

type IMul struct{}

func (IMul) Name() string     { return "MUL" }
func (IMul) SizeInBytes() int { return opPlainSizeInBytes }

type IDiv struct{}

func (IDiv) Name() string     { return "DIV" }
func (IDiv) SizeInBytes() int { return opPlainSizeInBytes }

type IMod struct{}

func (IMod) Name() string     { return "MOD" }
func (IMod) SizeInBytes() int { return opPlainSizeInBytes }

type ISel struct {
	True, False ILabel
}

func (ISel) Name() string     { return "SEL" }
func (ISel) SizeInBytes() int { return opSelSizeInBytes }

type ITsel struct {
	True, False ILabel
}

func (ITsel) Name() string     { return "TSEL" }
func (ITsel) SizeInBytes() int { return opTselSizeInBytes }

type IJoin struct{}

func (IJoin) Name() string     { return "JOIN" }
func (IJoin) SizeInBytes() int { return opPlainSizeInBytes }

type ILdf struct {
	Entry ILabel
}

func (ILdf) Name() string     { return "LDF" }
func (ILdf) SizeInBytes() int { return opLdfSizeInBytes }

type IAp struct {
	Arity uint8
}

func (IAp) Name() string     { return "AP" }
func (IAp) SizeInBytes() int { return opApSizeInBytes }

type IRtn struct{}

func (IRtn) Name() string     { return "RTN" }
func (IRtn) SizeInBytes() int { return opPlainSizeInBytes }

type IDum struct {
	Arity uint8
}

func (IDum) Name() string     { return "DUM" }
func (IDum) SizeInBytes() int { return opDumSizeInBytes }

type IRap struct {
	Arity uint8
}

func (IRap) Name() string     { return "RAP" }
func (IRap) SizeInBytes() int { return opRapSizeInBytes }

type IStop struct{}

func (IStop) Name() string     { return "STOP" }
func (IStop) SizeInBytes() int { return opPlainSizeInBytes }

type ICge struct{}

func (ICge) Name() string     { return "CGE" }
func (ICge) SizeInBytes() int { return opPlainSizeInBytes }

type ICgt struct{}

func (ICgt) Name() string     { return "CGT" }
func (ICgt) SizeInBytes() int { return opPlainSizeInBytes }

type ICeq struct{}

func (ICeq) Name() string     { return "CEQ" }
func (ICeq) SizeInBytes() int { return opPlainSizeInBytes }

// ILabel marks a position in a program.  It doesn't get written into
// the output code image.
type ILabel struct {
	ID int
}

func (ILabel) Name() string     { return "label" }
func (ILabel) SizeInBytes() int { return 0 }

// globalUniqueID is a global counter used for generating unique label
// IDs.  See the function NewILabel().
var globalUniqueID int

// NewILabel creates a new `ILabel` instruction with a unique ID
func NewILabel() ILabel {
	globalUniqueID++
	return ILabel{ID: globalUniqueID}
}
