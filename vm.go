package secd

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

// Machine is one SECD interpreter instance: the cell pool, the four
// registers, and the code image.  Instances are independent; nothing
// is shared, so deterministic side-by-side runs are possible.  A
// single goroutine may drive a Machine at a time.
type Machine struct {
	pool     []cell
	freeList Cell

	// The registers.  Each is a pool index, 0 when empty.
	s, e, c, d Cell

	code      []byte
	maxCode   int
	stepLimit int
	trace     bool

	// Working storage visible to mark; see MakeCons and pin.
	consA, consB Cell
	pins         []Cell
}

// New builds a machine from the given configuration (nil for the
// defaults) with every pool slot on the free list.
func New(cfg *Config) *Machine {
	if cfg == nil {
		cfg = NewConfig()
	}
	cells := cfg.GetInt("machine.cells")
	if cells < 2 || cells > 65536 {
		panic(fmt.Sprintf("machine.cells must be within 2..65536, got %d", cells))
	}
	m := &Machine{
		pool:      make([]cell, cells),
		maxCode:   cfg.GetInt("machine.code_size"),
		stepLimit: cfg.GetInt("machine.step_limit"),
		trace:     cfg.GetBool("machine.trace"),
	}
	m.initializePool()
	return m
}

// Reset relinks the whole pool into the free list and empties the
// registers.  The code image stays loaded.
func (m *Machine) Reset() {
	m.initializePool()
}

// LoadCode installs a code image.  The image size is capped by the
// machine.code_size setting, matching the fixed code store of the
// embedded build.
func (m *Machine) LoadCode(image []byte) error {
	if len(image) > m.maxCode {
		return MachineError{Kind: ErrCodeAddress, Message: "no more code space"}
	}
	m.code = append(m.code[:0], image...)
	return nil
}

func (m *Machine) LoadCodeFile(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadCode(image)
}

// Boot empties S, E, and D and points C at the given code offset: a
// one-cell list whose CAR is the instruction pointer.
func (m *Machine) Boot(entry int) (err error) {
	defer m.trap(&err)
	m.s, m.e, m.d = 0, 0, 0
	m.c = 0
	// drop any temporaries left pinned by an aborted instruction
	m.pins = m.pins[:0]
	base := len(m.pins)
	ip := m.pin(m.MakeInt(int32(entry)))
	m.c = m.MakeCons(m.pins[ip], m.MakeNil())
	m.unpin(base)
	return nil
}

// Run loads an image, boots at offset 0, and executes, returning the
// final S register.
func (m *Machine) Run(image []byte) (Cell, error) {
	if err := m.LoadCode(image); err != nil {
		return 0, err
	}
	if err := m.Boot(0); err != nil {
		return 0, err
	}
	if err := m.Execute(); err != nil {
		return 0, err
	}
	return m.s, nil
}

// Code returns the installed code image.
func (m *Machine) Code() []byte { return m.code }

func (m *Machine) Stack() Cell   { return m.s }
func (m *Machine) Env() Cell     { return m.e }
func (m *Machine) Control() Cell { return m.c }
func (m *Machine) Dump() Cell    { return m.d }

func (m *Machine) SetStack(c Cell)   { m.s = c }
func (m *Machine) SetEnv(c Cell)     { m.e = c }
func (m *Machine) SetControl(c Cell) { m.c = c }
func (m *Machine) SetDump(c Cell)    { m.d = c }

// Execute runs the fetch-decode-execute loop until STOP, an empty
// control list, or a fatal condition.  The answer, if any, is the
// head of S afterwards.
func (m *Machine) Execute() (err error) {
	defer m.trap(&err)

	steps := 0
	for m.c != 0 {
		if m.stepLimit > 0 {
			steps++
			if steps > m.stepLimit {
				raise(ErrStepLimit, "no STOP within %d instructions", m.stepLimit)
			}
		}
		if m.stepInstr() {
			return nil
		}
	}
	return nil
}

// Step fetches and executes a single instruction.  done reports that
// execution is over: STOP, RTN with an empty dump, or an already
// empty control list.
func (m *Machine) Step() (done bool, err error) {
	defer m.trap(&err)
	if m.c == 0 {
		return true, nil
	}
	return m.stepInstr(), nil
}

func (m *Machine) stepInstr() bool {
	pos := int(m.carInt(m.c))
	op := m.codeByte(pos)
	pos++
	m.setCodePos(pos)

	if m.trace || bool(glog.V(2)) {
		glog.Infof("S: %s  E: %s  C: %s  D: %s",
			m.SExprString(m.s), m.SExprString(m.e), m.SExprString(m.c), m.SExprString(m.d))
		glog.Infof("instr %s", opcodeName(op))
	}

	switch op {
	case opNil:
		m.s = m.MakeCons(m.MakeNil(), m.s)

	case opLdc:
		v := int32(m.fetchU32(&pos))
		m.setCodePos(pos)
		m.s = m.MakeCons(m.MakeInt(v), m.s)

	case opLd:
		frame := int(m.codeByte(pos))
		slot := int(m.codeByte(pos + 1))
		pos += 2
		m.setCodePos(pos)
		m.s = m.MakeCons(m.locate(frame, slot), m.s)

	case opAtom:
		loc := m.carCell(m.s)
		m.s = m.cdrCell(m.s)
		var v int32
		if loc != 0 && m.pool[loc].tag == tagInt {
			v = 1
		}
		m.s = m.MakeCons(m.MakeInt(v), m.s)

	case opCar:
		loc := m.carCell(m.s)
		m.s = m.cdrCell(m.s)
		m.s = m.MakeCons(m.carCell(loc), m.s)

	case opCdr:
		loc := m.carCell(m.s)
		m.s = m.cdrCell(m.s)
		m.s = m.MakeCons(m.cdrCell(loc), m.s)

	case opCons:
		loc := m.carCell(m.s)
		m.s = m.cdrCell(m.s)
		loc2 := m.carCell(m.s)
		m.s = m.cdrCell(m.s)
		m.s = m.MakeCons(m.MakeCons(loc, loc2), m.s)

	case opAdd:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(x+y), m.s)

	case opSub:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(y-x), m.s)

	case opMul:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(x*y), m.s)

	case opDiv:
		x, y := m.popInt2()
		if x == 0 {
			raise(ErrDivideByZero, "zero divisor")
		}
		m.s = m.MakeCons(m.MakeInt(y/x), m.s)

	case opMod:
		x, y := m.popInt2()
		if x == 0 {
			raise(ErrDivideByZero, "zero divisor")
		}
		m.s = m.MakeCons(m.MakeInt(y%x), m.s)

	case opCgt:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(boolInt(y > x)), m.s)

	case opCge:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(boolInt(y >= x)), m.s)

	case opCeq:
		x, y := m.popInt2()
		m.s = m.MakeCons(m.MakeInt(boolInt(x == y)), m.s)

	case opSel:
		x := m.carInt(m.s)
		m.s = m.cdrCell(m.s)
		t := m.fetchU32(&pos)
		f := m.fetchU32(&pos)
		m.setCodePos(pos)
		m.d = m.MakeCons(m.c, m.d)
		target := f
		if x != 0 {
			target = t
		}
		m.c = m.MakeCons(m.MakeInt(int32(target)), m.c)

	case opTsel:
		x := m.carInt(m.s)
		m.s = m.cdrCell(m.s)
		t := m.fetchU32(&pos)
		f := m.fetchU32(&pos)
		m.setCodePos(pos)
		target := f
		if x != 0 {
			target = t
		}
		m.c = m.MakeCons(m.MakeInt(int32(target)), m.c)

	case opJoin:
		m.c = m.carCell(m.d)
		m.d = m.cdrCell(m.d)

	case opLdf:
		entry := m.fetchU32(&pos)
		m.setCodePos(pos)
		m.s = m.MakeCons(m.MakeCons(m.MakeInt(int32(entry)), m.e), m.s)

	case opAp:
		base := len(m.pins)
		f := m.pin(m.carCell(m.s))
		m.s = m.cdrCell(m.s)
		n := int(m.codeByte(pos))
		pos++
		m.setCodePos(pos)

		frame := m.pin(m.MakeNil())
		for i := 0; i < n; i++ {
			m.pins[frame] = m.MakeCons(m.carCell(m.s), m.pins[frame])
			m.s = m.cdrCell(m.s)
		}

		m.d = m.MakeCons(m.s, m.MakeCons(m.e, m.MakeCons(m.c, m.d)))
		m.s = m.MakeNil()
		m.e = m.MakeCons(m.pins[frame], m.cdrCell(m.pins[f]))
		ip := m.pin(m.MakeInt(m.carInt(m.pins[f])))
		m.c = m.MakeCons(m.pins[ip], m.MakeNil())
		m.unpin(base)

	case opRtn:
		if m.d == 0 {
			return true
		}
		loc := m.carCell(m.s)
		m.s = m.MakeCons(loc, m.carCell(m.d))
		m.d = m.cdrCell(m.d)
		m.e = m.carCell(m.d)
		m.d = m.cdrCell(m.d)
		m.c = m.carCell(m.d)
		m.d = m.cdrCell(m.d)

	case opDum:
		n := int(m.codeByte(pos))
		pos++
		m.setCodePos(pos)
		base := len(m.pins)
		frame := m.pin(m.MakeNil())
		for i := 0; i < n; i++ {
			m.pins[frame] = m.MakeCons(m.MakeInt(0), m.pins[frame])
		}
		m.e = m.MakeCons(m.pins[frame], m.e)
		m.unpin(base)

	case opRap:
		base := len(m.pins)
		f := m.pin(m.carCell(m.s))
		m.s = m.cdrCell(m.s)
		n := int(m.codeByte(pos))
		pos++
		m.setCodePos(pos)

		frame := m.pin(m.MakeNil())
		for i := 0; i < n; i++ {
			m.pins[frame] = m.MakeCons(m.carCell(m.s), m.pins[frame])
			m.s = m.cdrCell(m.s)
		}

		// The closures in the new frame captured the environment
		// headed by the dummy frame, so the dummy is replaced in
		// place and every captured reference sees the real frame.
		m.setCar(m.e, m.pins[frame])

		m.d = m.MakeCons(m.s, m.MakeCons(m.cdrCell(m.e), m.MakeCons(m.c, m.d)))
		m.s = m.MakeNil()
		m.e = m.cdrCell(m.pins[f])
		ip := m.pin(m.MakeInt(m.carInt(m.pins[f])))
		m.c = m.MakeCons(m.pins[ip], m.MakeNil())
		m.unpin(base)

	case opStop:
		return true

	default:
		raise(ErrOpcodeUnknown, "0x%02x at offset %d", op, pos-1)
	}

	return false
}

// locate resolves an LD (frame, slot) pair against E: the slot-th
// value of the frame-th environment frame.
func (m *Machine) locate(frame, slot int) Cell {
	pos := m.e
	for ; frame > 0; frame-- {
		pos = m.cdrCell(pos)
		if pos == 0 {
			raise(ErrNullDereference, "invalid environment reference")
		}
	}
	pos = m.carCell(pos)
	for ; slot > 0; slot-- {
		pos = m.cdrCell(pos)
		if pos == 0 {
			raise(ErrNullDereference, "invalid environment offset")
		}
	}
	return m.carCell(pos)
}

// setCodePos advances the instruction pointer: the INT cell at the
// head of C is updated in place.
func (m *Machine) setCodePos(pos int) {
	if m.c == 0 {
		return
	}
	ip := m.carCell(m.c)
	if ip == 0 {
		raise(ErrNullDereference, "control list has no instruction pointer")
	}
	if m.pool[ip].tag != tagInt {
		raise(ErrTypeMismatch, "instruction pointer is not an int")
	}
	m.pool[ip].data = int32(pos)
}

func (m *Machine) codeByte(pos int) byte {
	if pos < 0 || pos >= len(m.code) {
		raise(ErrCodeAddress, "address %d outside [0, %d)", pos, len(m.code))
	}
	return m.code[pos]
}

func (m *Machine) fetchU32(pos *int) uint32 {
	if *pos < 0 || *pos+4 > len(m.code) {
		raise(ErrCodeAddress, "address %d outside [0, %d)", *pos, len(m.code))
	}
	v := decodeU32(m.code[*pos:])
	*pos += 4
	return v
}

func (m *Machine) popInt2() (x, y int32) {
	x = m.carInt(m.s)
	m.s = m.cdrCell(m.s)
	y = m.carInt(m.s)
	m.s = m.cdrCell(m.s)
	return x, y
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func opcodeName(op byte) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", op)
}
