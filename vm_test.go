package secd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProgram(t *testing.T, program []Instruction) *Machine {
	t.Helper()
	m := New(nil)
	_, err := m.Run(Encode(program))
	require.NoError(t, err)
	return m
}

func listLen(m *Machine, c Cell) int {
	n := 0
	for ; c != 0; c = m.pool[c].cdr {
		n++
	}
	return n
}

// The hex images spelled out in raw bytes pin down the code image
// format independently of the encoder.
func TestRawImages(t *testing.T) {
	tests := []struct {
		name     string
		image    []byte
		expected string
	}{
		{
			"push one literal",
			[]byte{0x01, 0x00, 0x00, 0x00, 0x2A, 0x13},
			"(42)",
		},
		{
			"addition",
			[]byte{0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x00, 0x04, 0x07, 0x13},
			"(7)",
		},
		{
			"subtraction order",
			[]byte{0x01, 0x00, 0x00, 0x00, 0x0A, 0x01, 0x00, 0x00, 0x00, 0x03, 0x08, 0x13},
			"(7)",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := New(nil)
			final, err := m.Run(test.image)
			require.NoError(t, err)
			assert.Equal(t, test.expected, m.SExprString(final))
		})
	}
}

func TestLdcFullImmediate(t *testing.T) {
	m := runProgram(t, []Instruction{ILdc{0x01020304}, IStop{}})
	assert.Equal(t, "(16909060)", m.SExprString(m.Stack()))

	m = runProgram(t, []Instruction{ILdc{-1}, IStop{}})
	assert.Equal(t, "(-1)", m.SExprString(m.Stack()))
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		program  []Instruction
		expected string
	}{
		{"add", []Instruction{ILdc{3}, ILdc{4}, IAdd{}, IStop{}}, "(7)"},
		{"sub takes earlier minus later", []Instruction{ILdc{10}, ILdc{3}, ISub{}, IStop{}}, "(7)"},
		{"mul", []Instruction{ILdc{6}, ILdc{7}, IMul{}, IStop{}}, "(42)"},
		{"div takes earlier over later", []Instruction{ILdc{20}, ILdc{5}, IDiv{}, IStop{}}, "(4)"},
		{"mod takes earlier mod later", []Instruction{ILdc{7}, ILdc{3}, IMod{}, IStop{}}, "(1)"},
		{"cgt compares earlier to later", []Instruction{ILdc{5}, ILdc{3}, ICgt{}, IStop{}}, "(1)"},
		{"cgt false", []Instruction{ILdc{3}, ILdc{5}, ICgt{}, IStop{}}, "(0)"},
		{"cge on equal", []Instruction{ILdc{5}, ILdc{5}, ICge{}, IStop{}}, "(1)"},
		{"cge false", []Instruction{ILdc{4}, ILdc{5}, ICge{}, IStop{}}, "(0)"},
		{"ceq true", []Instruction{ILdc{5}, ILdc{5}, ICeq{}, IStop{}}, "(1)"},
		{"ceq false", []Instruction{ILdc{5}, ILdc{6}, ICeq{}, IStop{}}, "(0)"},
		{"overflow wraps", []Instruction{ILdc{2147483647}, ILdc{1}, IAdd{}, IStop{}}, "(-2147483648)"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := runProgram(t, test.program)
			assert.Equal(t, test.expected, m.SExprString(m.Stack()))
		})
	}
}

func TestListInstructions(t *testing.T) {
	tests := []struct {
		name     string
		program  []Instruction
		expected string
	}{
		{"nil", []Instruction{INil{}, IStop{}}, "(NIL)"},
		{"cons", []Instruction{INil{}, ILdc{1}, ICons{}, IStop{}}, "((1))"},
		{"car", []Instruction{INil{}, ILdc{1}, ICons{}, ICar{}, IStop{}}, "(1)"},
		{"cdr of a one-element list", []Instruction{INil{}, ILdc{1}, ICons{}, ICdr{}, IStop{}}, "()"},
		{"atom on int", []Instruction{ILdc{5}, IAtom{}, IStop{}}, "(1)"},
		{"atom on nil", []Instruction{INil{}, IAtom{}, IStop{}}, "(0)"},
		{"atom on cons", []Instruction{INil{}, ILdc{1}, ICons{}, IAtom{}, IStop{}}, "(0)"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := runProgram(t, test.program)
			assert.Equal(t, test.expected, m.SExprString(m.Stack()))
		})
	}
}

func conditionalProgram(x int32) []Instruction {
	lt, lf := NewILabel(), NewILabel()
	return []Instruction{
		ILdc{x},
		ISel{True: lt, False: lf},
		ILdc{99},
		IStop{},
		lt, ILdc{1}, IJoin{},
		lf, ILdc{2}, IJoin{},
	}
}

// SEL saves the control list on the dump and JOIN resumes right
// after the SEL operands, so the trailing LDC 99 runs either way.
func TestConditional(t *testing.T) {
	t.Run("false branch on zero", func(t *testing.T) {
		m := runProgram(t, conditionalProgram(0))
		assert.Equal(t, "(99 2)", m.SExprString(m.Stack()))
		assert.Equal(t, Cell(0), m.Dump())
	})

	t.Run("true branch on non-zero", func(t *testing.T) {
		m := runProgram(t, conditionalProgram(1))
		assert.Equal(t, "(99 1)", m.SExprString(m.Stack()))
	})

	t.Run("any non-zero value is true", func(t *testing.T) {
		m := runProgram(t, conditionalProgram(-3))
		assert.Equal(t, "(99 1)", m.SExprString(m.Stack()))
	})
}

func TestTailSelect(t *testing.T) {
	lt, lf := NewILabel(), NewILabel()
	program := []Instruction{
		ILdc{1},
		ITsel{True: lt, False: lf},
		lt, ILdc{42}, IStop{},
		lf, ILdc{0}, IStop{},
	}
	m := runProgram(t, program)
	assert.Equal(t, "(42)", m.SExprString(m.Stack()))
	assert.Equal(t, Cell(0), m.Dump(), "TSEL must not grow the dump")
}

func TestFunctionCall(t *testing.T) {
	t.Run("single int argument", func(t *testing.T) {
		k := NewILabel()
		m := runProgram(t, []Instruction{
			ILdc{5}, ILdf{Entry: k}, IAp{1}, IStop{},
			k, ILd{0, 0}, IRtn{},
		})
		assert.Equal(t, "(5)", m.SExprString(m.Stack()))
	})

	t.Run("list argument built with CONS", func(t *testing.T) {
		// The argument here is the list (5), so the callee's
		// LD (0,0) sees a list, not the integer.
		k := NewILabel()
		m := runProgram(t, []Instruction{
			INil{}, ILdc{5}, ICons{}, ILdf{Entry: k}, IAp{1}, IStop{},
			k, ILd{0, 0}, IRtn{},
		})
		assert.Equal(t, "((5))", m.SExprString(m.Stack()))
	})

	t.Run("argument order in the frame", func(t *testing.T) {
		// Earliest-pushed value lands at slot 0.
		k := NewILabel()
		m := runProgram(t, []Instruction{
			ILdc{10}, ILdc{20}, ILdc{30}, ILdf{Entry: k}, IAp{3}, IStop{},
			k, ILd{0, 2}, ILd{0, 0}, ISub{}, IRtn{},
		})
		// slot 0 = 10, slot 2 = 30; SUB leaves 30 - 10.
		assert.Equal(t, "(20)", m.SExprString(m.Stack()))
	})
}

func TestApRtnRoundTrip(t *testing.T) {
	k := NewILabel()
	program := []Instruction{
		ILdc{7}, ILdf{Entry: k}, IAp{1}, IStop{},
		k, ILd{0, 0}, IRtn{},
	}
	m := New(nil)
	require.NoError(t, m.LoadCode(Encode(program)))
	require.NoError(t, m.Boot(0))

	for i := 0; i < 3; i++ { // LDC, LDF, AP
		done, err := m.Step()
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Equal(t, 3, listLen(m, m.Dump()), "AP pushes S, E, and C")
	assert.Equal(t, "NIL", m.SExprString(m.Stack()))
	assert.Equal(t, "((7))", m.SExprString(m.Env()))

	for i := 0; i < 2; i++ { // LD, RTN
		done, err := m.Step()
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Equal(t, "(7)", m.SExprString(m.Stack()))
	assert.Equal(t, Cell(0), m.Env(), "caller environment restored")
	assert.Equal(t, Cell(0), m.Dump(), "RTN pops all three saved entries")

	done, err := m.Step() // STOP
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRtnWithEmptyDumpHalts(t *testing.T) {
	m := runProgram(t, []Instruction{ILdc{5}, IRtn{}})
	assert.Equal(t, "(5)", m.SExprString(m.Stack()))
}

// Within a basic block the instruction pointer advances by exactly
// the operand width of each instruction.
func TestInstructionPointerAdvance(t *testing.T) {
	program := []Instruction{INil{}, ILdc{7}, IAtom{}, IStop{}}
	m := New(nil)
	require.NoError(t, m.LoadCode(Encode(program)))
	require.NoError(t, m.Boot(0))

	offset := 0
	for _, instruction := range program[:3] {
		done, err := m.Step()
		require.NoError(t, err)
		require.False(t, done)
		offset += instruction.SizeInBytes()
		assert.Equal(t, int32(offset), m.carInt(m.Control()))
	}
}

func evenOddProgram(n int32) []Instruction {
	leven, lodd, lbody := NewILabel(), NewILabel(), NewILabel()
	evenT, evenF := NewILabel(), NewILabel()
	oddT, oddF := NewILabel(), NewILabel()
	return []Instruction{
		IDum{Arity: 2},
		ILdf{Entry: leven},
		ILdf{Entry: lodd},
		ILdf{Entry: lbody},
		IRap{Arity: 2},
		IStop{},

		leven,
		ILd{0, 0}, ILdc{0}, ICeq{},
		ISel{True: evenT, False: evenF},
		IRtn{},
		evenT, ILdc{1}, IJoin{},
		evenF, ILd{0, 0}, ILdc{1}, ISub{}, ILd{1, 1}, IAp{1}, IJoin{},

		lodd,
		ILd{0, 0}, ILdc{0}, ICeq{},
		ISel{True: oddT, False: oddF},
		IRtn{},
		oddT, ILdc{0}, IJoin{},
		oddF, ILd{0, 0}, ILdc{1}, ISub{}, ILd{1, 0}, IAp{1}, IJoin{},

		lbody,
		ILdc{n}, ILd{0, 0}, IAp{1}, IRtn{},
	}
}

// Mutually recursive even/odd through DUM+RAP: each closure reaches
// the other through the environment frame RAP installed over the
// dummy, which is only possible when the dummy frame is replaced in
// place.
func TestLetrec(t *testing.T) {
	tests := []struct {
		name     string
		n        int32
		expected string
	}{
		{"even of six", 6, "(1)"},
		{"even of five", 5, "(0)"},
		{"even of zero", 0, "(1)"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := runProgram(t, evenOddProgram(test.n))
			assert.Equal(t, test.expected, m.SExprString(m.Stack()))
		})
	}
}

// A recursive binding installed by DUM+RAP is visible to itself.
func TestRapSelfReference(t *testing.T) {
	// loop(n) = if n == 0 then 42 else loop(n - 1)
	lloop, lbody := NewILabel(), NewILabel()
	loopT, loopF := NewILabel(), NewILabel()
	m := runProgram(t, []Instruction{
		IDum{Arity: 1},
		ILdf{Entry: lloop},
		ILdf{Entry: lbody},
		IRap{Arity: 1},
		IStop{},

		lloop,
		ILd{0, 0}, ILdc{0}, ICeq{},
		ISel{True: loopT, False: loopF},
		IRtn{},
		loopT, ILdc{42}, IJoin{},
		loopF, ILd{0, 0}, ILdc{1}, ISub{}, ILd{1, 0}, IAp{1}, IJoin{},

		lbody,
		ILdc{4}, ILd{0, 0}, IAp{1}, IRtn{},
	})
	assert.Equal(t, "(42)", m.SExprString(m.Stack()))
}

func TestExecutionErrors(t *testing.T) {
	tests := []struct {
		name  string
		image []byte
		kind  ErrorKind
	}{
		{"unknown opcode", []byte{opCne}, ErrOpcodeUnknown},
		{"reserved comparison opcode", []byte{opClt}, ErrOpcodeUnknown},
		{"byte past the table", []byte{0x7F}, ErrOpcodeUnknown},
		{"truncated immediate", []byte{opLdc, 0x00}, ErrCodeAddress},
		{"running off the end", []byte{opNil}, ErrCodeAddress},
		{"empty image", nil, ErrCodeAddress},
		{"CAR of an int", Encode([]Instruction{ILdc{1}, ICar{}}), ErrTypeMismatch},
		{"CDR of an int", Encode([]Instruction{ILdc{1}, ICdr{}}), ErrTypeMismatch},
		{"arithmetic on nil", Encode([]Instruction{INil{}, INil{}, IAdd{}}), ErrTypeMismatch},
		{"AP of a non-closure", Encode([]Instruction{ILdc{1}, ILdc{2}, IAp{1}}), ErrTypeMismatch},
		{"LD with an empty environment", Encode([]Instruction{ILd{0, 0}}), ErrNullDereference},
		{"JOIN with an empty dump", Encode([]Instruction{IJoin{}}), ErrNullDereference},
		{"CAR of an empty stack", Encode([]Instruction{ICar{}}), ErrNullDereference},
		{"division by zero", Encode([]Instruction{ILdc{5}, ILdc{0}, IDiv{}}), ErrDivideByZero},
		{"modulo by zero", Encode([]Instruction{ILdc{5}, ILdc{0}, IMod{}}), ErrDivideByZero},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := New(nil)
			_, err := m.Run(test.image)
			var me MachineError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, test.kind, me.Kind)
		})
	}
}

func TestStepLimit(t *testing.T) {
	start := NewILabel()
	program := []Instruction{
		start,
		ILdc{1},
		ITsel{True: start, False: start},
	}
	cfg := NewConfig()
	cfg.SetInt("machine.step_limit", 10)
	m := New(cfg)
	_, err := m.Run(Encode(program))
	var me MachineError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrStepLimit, me.Kind)
}

// Straight-line code that allocates several times the pool size: the
// collector has to run mid-program, and everything reachable from the
// registers must survive it unchanged.
func TestCollectionDuringExecution(t *testing.T) {
	program := []Instruction{ILdc{1}}
	for i := 0; i < 40; i++ {
		program = append(program, ILdc{1}, IAdd{})
	}
	program = append(program, ILd{0, 1}, IStop{})

	cfg := NewConfig()
	cfg.SetInt("machine.cells", 64)
	m := New(cfg)
	require.NoError(t, m.LoadCode(Encode(program)))
	require.NoError(t, m.Boot(0))

	env, err := NewReader(m, strings.NewReader("((10 20) (30))")).Read()
	require.NoError(t, err)
	m.SetEnv(env)
	before := m.SExprString(env)

	require.NoError(t, m.Execute())

	assert.Equal(t, before, m.SExprString(m.Env()))
	assert.Equal(t, "(20 41)", m.SExprString(m.Stack()))
}

func TestBootShape(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.LoadCode([]byte{0x13}))
	require.NoError(t, m.Boot(3))

	assert.Equal(t, "(3)", m.SExprString(m.Control()))
	assert.Equal(t, Cell(0), m.Stack())
	assert.Equal(t, Cell(0), m.Env())
	assert.Equal(t, Cell(0), m.Dump())
}

func BenchmarkExecute(b *testing.B) {
	code := Encode(evenOddProgram(20))
	m := New(nil)
	if err := m.LoadCode(code); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Reset()
		if err := m.Boot(0); err != nil {
			b.Fatal(err)
		}
		if err := m.Execute(); err != nil {
			b.Fatal(err)
		}
	}
}

func TestMachinesAreIndependent(t *testing.T) {
	a := New(nil)
	b := New(nil)
	_, err := a.Run(Encode([]Instruction{ILdc{1}, IStop{}}))
	require.NoError(t, err)
	_, err = b.Run(Encode([]Instruction{ILdc{2}, IStop{}}))
	require.NoError(t, err)
	assert.Equal(t, "(1)", a.SExprString(a.Stack()))
	assert.Equal(t, "(2)", b.SExprString(b.Stack()))
}
