package secd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// SExprString renders a cell as an s-expression: INTs as decimal
// literals, the nil atom as NIL, pairs as parenthesised lists with an
// ` . <int>` tail when the spine ends in an integer.  The null
// pointer renders as the empty string.
func (m *Machine) SExprString(c Cell) string {
	var s strings.Builder
	m.printCell(&s, c)
	return s.String()
}

func (m *Machine) printCell(s *strings.Builder, c Cell) {
	if c == 0 {
		return
	}
	switch m.pool[c].tag {
	case tagInt:
		fmt.Fprintf(s, "%d", m.pool[c].data)
	case tagNil:
		s.WriteString("NIL")
	case tagCons:
		s.WriteString("(")
		printedFirst := false
		for c != 0 {
			if printedFirst {
				s.WriteString(" ")
			}
			m.printCell(s, m.pool[c].car)
			printedFirst = true
			c = m.pool[c].cdr
			if c == 0 {
				break
			}
			if m.pool[c].tag == tagInt {
				fmt.Fprintf(s, " . %d", m.pool[c].data)
				break
			}
		}
		s.WriteString(")")
	}
}

// ReadError is the error reported when the reader hits a character it
// can't use where it is.
type ReadError struct {
	Message string
	Pos     int
}

func (e ReadError) Error() string {
	return fmt.Sprintf("%s @ %d", e.Message, e.Pos)
}

// Reader parses s-expressions from a character source into cells on
// the machine's heap.  Only the interactive front-ends use it to set
// registers directly; execution never does.
type Reader struct {
	m   *Machine
	in  *bufio.Reader
	pos int
}

func NewReader(m *Machine, in io.Reader) *Reader {
	return &Reader{m: m, in: bufio.NewReader(in)}
}

// Read parses one parenthesised list of decimal integers and nested
// lists.  Lists are built by prepending and reversed on the closing
// paren to restore source order.
func (r *Reader) Read() (c Cell, err error) {
	defer r.m.trap(&err)
	return r.read()
}

func (r *Reader) read() (Cell, error) {
	for {
		ch, err := r.readByte()
		if err != nil {
			return 0, err
		}
		switch ch {
		case ' ', '\t', '\n', '\r':
			continue
		case '(':
			return r.readList()
		default:
			return 0, r.errorf("expected ( to start sexpr, got %q", ch)
		}
	}
}

func (r *Reader) readList() (Cell, error) {
	base := len(r.m.pins)
	acc := r.m.pin(0)

	num := int32(0)
	inNum := false
	flush := func() {
		if inNum {
			r.m.pins[acc] = r.m.MakeCons(r.m.MakeInt(num), r.m.pins[acc])
			inNum = false
		}
	}

	for {
		ch, err := r.readByte()
		if err != nil {
			r.m.unpin(base)
			if err == io.EOF {
				return 0, r.errorf("unexpected EOF inside sexpr")
			}
			return 0, err
		}
		switch {
		case ch >= '0' && ch <= '9':
			if !inNum {
				num = 0
				inNum = true
			}
			num = num*10 + int32(ch-'0')

		case ch == ' ' || ch == '\t':
			flush()

		case ch == ')':
			flush()
			lst := r.m.Reverse(r.m.pins[acc])
			r.m.unpin(base)
			return lst, nil

		case ch == '(':
			flush()
			r.unreadByte()
			sub, err := r.read()
			if err != nil {
				r.m.unpin(base)
				return 0, err
			}
			r.m.pins[acc] = r.m.MakeCons(sub, r.m.pins[acc])

		case ch == '\n' || ch == '\r':
			// a line break separates tokens like a space does
			flush()

		default:
			r.m.unpin(base)
			return 0, r.errorf("unknown character %q", ch)
		}
	}
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.in.ReadByte()
	if err == nil {
		r.pos++
	}
	return b, err
}

func (r *Reader) unreadByte() {
	if r.in.UnreadByte() == nil {
		r.pos--
	}
}

func (r *Reader) errorf(format string, args ...interface{}) error {
	return ReadError{Message: fmt.Sprintf(format, args...), Pos: r.pos}
}
