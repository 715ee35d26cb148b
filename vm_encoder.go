package secd

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Encode lowers a program into a code image.  Labels are resolved to
// absolute byte offsets in a first pass and emit nothing themselves.
func Encode(program []Instruction) []byte {
	var (
		code   []byte
		cursor int
		labels = map[ILabel]int{}
	)
	for _, instruction := range program {
		switch ii := instruction.(type) {
		case ILabel:
			labels[ii] = cursor
		default:
			cursor += instruction.SizeInBytes()
		}
	}
	for _, instruction := range program {
		switch ii := instruction.(type) {
		case ILabel:
			// doesn't translate to anything
		case INil:
			code = append(code, opNil)
		case ILdc:
			code = append(code, opLdc)
			code = encodeU32(code, uint32(ii.Value))
		case ILd:
			code = append(code, opLd, ii.Frame, ii.Slot)
		case IAtom:
			code = append(code, opAtom)
		case ICar:
			code = append(code, opCar)
		case ICdr:
			code = append(code, opCdr)
		case ICons:
			code = append(code, opCons)
		case IAdd:
			code = append(code, opAdd)
		case ISub:
			code = append(code, opSub)
		case IMul:
			code = append(code, opMul)
		case IDiv:
			code = append(code, opDiv)
		case IMod:
			code = append(code, opMod)
		case ISel:
			code = append(code, opSel)
			code = encodeU32(code, uint32(labels[ii.True]))
			code = encodeU32(code, uint32(labels[ii.False]))
		case ITsel:
			code = append(code, opTsel)
			code = encodeU32(code, uint32(labels[ii.True]))
			code = encodeU32(code, uint32(labels[ii.False]))
		case IJoin:
			code = append(code, opJoin)
		case ILdf:
			code = append(code, opLdf)
			code = encodeU32(code, uint32(labels[ii.Entry]))
		case IAp:
			code = append(code, opAp, ii.Arity)
		case IRtn:
			code = append(code, opRtn)
		case IDum:
			code = append(code, opDum, ii.Arity)
		case IRap:
			code = append(code, opRap, ii.Arity)
		case IStop:
			code = append(code, opStop)
		case ICge:
			code = append(code, opCge)
		case ICgt:
			code = append(code, opCgt)
		case ICeq:
			code = append(code, opCeq)
		}
	}
	return code
}

// Disassemble renders a code image as one mnemonic per line, prefixed
// with the byte offset of the instruction.  Branch targets and entry
// addresses stay absolute, the way the engine consumes them.
func Disassemble(code []byte) (string, error) {
	var s strings.Builder
	for cursor := 0; cursor < len(code); {
		op := code[cursor]
		name, ok := opNames[op]
		if !ok {
			return "", fmt.Errorf("unknown opcode 0x%02x at offset %d", op, cursor)
		}
		fmt.Fprintf(&s, "%06d  %s", cursor, name)
		cursor++

		operands := 0
		switch op {
		case opLdc:
			operands = 4
			if cursor+4 > len(code) {
				return "", truncatedErr(name, cursor)
			}
			fmt.Fprintf(&s, " %d", int32(decodeU32(code[cursor:])))
		case opLd:
			operands = 2
			if cursor+2 > len(code) {
				return "", truncatedErr(name, cursor)
			}
			fmt.Fprintf(&s, " %d %d", code[cursor], code[cursor+1])
		case opSel, opTsel:
			operands = 8
			if cursor+8 > len(code) {
				return "", truncatedErr(name, cursor)
			}
			fmt.Fprintf(&s, " %d %d", decodeU32(code[cursor:]), decodeU32(code[cursor+4:]))
		case opLdf:
			operands = 4
			if cursor+4 > len(code) {
				return "", truncatedErr(name, cursor)
			}
			fmt.Fprintf(&s, " %d", decodeU32(code[cursor:]))
		case opAp, opDum, opRap:
			operands = 1
			if cursor+1 > len(code) {
				return "", truncatedErr(name, cursor)
			}
			fmt.Fprintf(&s, " %d", code[cursor])
		}
		cursor += operands
		s.WriteString("\n")
	}
	return s.String(), nil
}

func truncatedErr(name string, cursor int) error {
	return fmt.Errorf("truncated %s operand at offset %d", name, cursor)
}

var (
	decodeU32 = binary.BigEndian.Uint32
	encodeU32 = binary.BigEndian.AppendUint32
)
