package secd

// Cell names a slot in the machine's cell pool.  Index 0 is the null
// sentinel: it is never allocated and stands for "no cell" wherever a
// CAR, CDR, or register would otherwise point at one.
type Cell uint16

type cellTag uint8

const (
	tagCons cellTag = iota
	tagInt
	tagNil
)

// cell is the single heap unit.  An INT carries its value in data; a
// CONS carries pool indexes in car and cdr.  The cdr field doubles as
// the free-list link while the cell is unallocated.
type cell struct {
	mark bool
	tag  cellTag
	data int32
	car  Cell
	cdr  Cell
}

// initializePool links every non-sentinel slot into the free list in
// ascending index order and empties the registers.
func (m *Machine) initializePool() {
	last := len(m.pool) - 1
	for i := 1; i < last; i++ {
		m.pool[i] = cell{cdr: Cell(i + 1)}
	}
	m.pool[last] = cell{}
	m.freeList = 1
	m.s, m.e, m.c, m.d = 0, 0, 0, 0
	m.pins = m.pins[:0]
	m.consA, m.consB = 0, 0
}

// allocCell unlinks the head of the free list, collecting first when
// the list is empty.  The returned cell's tag and payload are whatever
// its previous life left behind; callers fully initialise it.
func (m *Machine) allocCell() Cell {
	if m.freeList == 0 {
		m.collect()
	}
	c := m.freeList
	if c == 0 {
		raise(ErrOutOfMemory, "free list empty after collection")
	}
	m.freeList = m.pool[c].cdr
	return c
}

func (m *Machine) MakeInt(v int32) Cell {
	c := m.allocCell()
	m.pool[c] = cell{tag: tagInt, data: v}
	return c
}

func (m *Machine) MakeNil() Cell {
	c := m.allocCell()
	m.pool[c] = cell{tag: tagNil}
	return c
}

// MakeCons builds a pair.  A non-null NIL cdr is stored as the null
// sentinel, so lists are chains of CONS cells terminated by a zero
// CDR rather than by a NIL cell; several opcodes end a list with a
// freshly allocated NIL and count on this collapse.
func (m *Machine) MakeCons(cellCar, cellCdr Cell) Cell {
	// The arguments are often freshly built cells that no register
	// references yet.  Stash them where mark can see them in case
	// the allocation below has to collect.
	m.consA, m.consB = cellCar, cellCdr
	c := m.allocCell()
	m.consA, m.consB = 0, 0

	if cellCdr != 0 && m.pool[cellCdr].tag == tagNil {
		cellCdr = 0
	}
	m.pool[c] = cell{tag: tagCons, car: cellCar, cdr: cellCdr}
	return c
}

// pin roots a cell that is only referenced from interpreter locals,
// so a collection triggered while a structure is still being built
// cannot reclaim it.  Callers record len(m.pins) first and unpin back
// to it when the structure is reachable from a register.
func (m *Machine) pin(c Cell) int {
	m.pins = append(m.pins, c)
	return len(m.pins) - 1
}

func (m *Machine) unpin(base int) {
	m.pins = m.pins[:base]
}

func (m *Machine) carCell(c Cell) Cell {
	if c == 0 {
		raise(ErrNullDereference, "tried to get CAR of null")
	}
	if m.pool[c].tag != tagCons {
		raise(ErrTypeMismatch, "tried to CAR non-CONS")
	}
	return m.pool[c].car
}

func (m *Machine) cdrCell(c Cell) Cell {
	if c == 0 {
		raise(ErrNullDereference, "tried to get CDR of null")
	}
	if m.pool[c].tag != tagCons {
		raise(ErrTypeMismatch, "tried to CDR non-CONS")
	}
	return m.pool[c].cdr
}

// carInt extracts the integer held by the CAR of c.
func (m *Machine) carInt(c Cell) int32 {
	car := m.carCell(c)
	if car == 0 {
		raise(ErrNullDereference, "tried to get int CAR of null")
	}
	if m.pool[car].tag != tagInt {
		raise(ErrTypeMismatch, "tried to get int CAR of non-int cell")
	}
	return m.pool[car].data
}

// cdrInt extracts the integer held by the CDR of c.
func (m *Machine) cdrInt(c Cell) int32 {
	cdr := m.cdrCell(c)
	if cdr == 0 {
		raise(ErrNullDereference, "tried to get int CDR of null")
	}
	if m.pool[cdr].tag != tagInt {
		raise(ErrTypeMismatch, "tried to get int CDR of non-int cell")
	}
	return m.pool[cdr].data
}

// setCar overwrites the CAR of an existing pair in place.  The only
// caller is RAP, which ties recursive environments by replacing the
// dummy frame installed by DUM.
func (m *Machine) setCar(c, v Cell) {
	if c == 0 {
		raise(ErrNullDereference, "tried to set CAR of null")
	}
	if m.pool[c].tag != tagCons {
		raise(ErrTypeMismatch, "tried to set CAR of non-CONS")
	}
	m.pool[c].car = v
}

// Reverse builds a new list with the elements of lst in reverse
// order.  The reader uses it to restore source order after building
// by prepending.
func (m *Machine) Reverse(lst Cell) Cell {
	base := len(m.pins)
	src := m.pin(lst)
	out := m.pin(0)
	for l := m.pins[src]; l != 0; l = m.cdrCell(l) {
		m.pins[out] = m.MakeCons(m.carCell(l), m.pins[out])
	}
	r := m.pins[out]
	m.unpin(base)
	return r
}

func (m *Machine) markCells(c Cell) {
	if c == 0 {
		return
	}
	cl := &m.pool[c]
	if cl.mark {
		return
	}
	cl.mark = true
	if cl.tag == tagCons {
		m.markCells(cl.car)
		m.markCells(cl.cdr)
	}
}

// mark walks everything reachable from the registers and the pinned
// temporaries, then the free list itself.  Marking the free cells
// keeps sweep from linking them in a second time.
func (m *Machine) mark() {
	m.markCells(m.s)
	m.markCells(m.e)
	m.markCells(m.c)
	m.markCells(m.d)
	m.markCells(m.consA)
	m.markCells(m.consB)
	for _, c := range m.pins {
		m.markCells(c)
	}
	for c := m.freeList; c != 0; c = m.pool[c].cdr {
		m.pool[c].mark = true
	}
}

// sweep prepends every unmarked slot to the free list and clears the
// mark bit on the survivors.
func (m *Machine) sweep() {
	for i := 1; i < len(m.pool); i++ {
		if !m.pool[i].mark {
			m.pool[i].cdr = m.freeList
			m.freeList = Cell(i)
		} else {
			m.pool[i].mark = false
		}
	}
}

func (m *Machine) collect() {
	m.mark()
	m.sweep()
}
