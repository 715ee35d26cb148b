package secd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Console is an interactive front-end for one machine; registers can
// be inspected and set through letter commands.
// commands:
//
//	s/e/c/d <sexpr>:
//	  set the named register from an s-expression.
//	l <file>:
//	  load a binary code image.
//	a:
//	  print the disassembly of the loaded image.
//	b [entry]:
//	  boot: clear S/E/D and point C at entry (default 0).
//	x:
//	  execute, then print the final stack.
//	n:
//	  execute a single instruction.
//	p:
//	  print the registers.
//	r:
//	  reset the pool and registers.
//	q:
//	  quit.
type Console struct {
	m   *Machine
	in  *bufio.Scanner
	out io.Writer
}

func NewConsole(m *Machine, in io.Reader, out io.Writer) *Console {
	return &Console{m: m, in: bufio.NewScanner(in), out: out}
}

func (c *Console) Run() error {
	fmt.Fprintln(c.out, "SECD Machine")
	for {
		fmt.Fprint(c.out, "> ")
		if !c.in.Scan() {
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		cmd, arg := line[:1], strings.TrimSpace(line[1:])

		switch cmd {
		case "s", "e", "c", "d":
			v, err := NewReader(c.m, strings.NewReader(arg)).Read()
			if err != nil {
				fmt.Fprintln(c.out, err)
				continue
			}
			switch cmd {
			case "s":
				c.m.SetStack(v)
			case "e":
				c.m.SetEnv(v)
			case "c":
				c.m.SetControl(v)
			case "d":
				c.m.SetDump(v)
			}

		case "l":
			if err := c.m.LoadCodeFile(arg); err != nil {
				fmt.Fprintln(c.out, err)
			}

		case "a":
			asm, err := Disassemble(c.m.code)
			if err != nil {
				fmt.Fprintln(c.out, err)
				continue
			}
			fmt.Fprint(c.out, asm)

		case "b":
			entry := 0
			if arg != "" {
				var err error
				if entry, err = strconv.Atoi(arg); err != nil {
					fmt.Fprintln(c.out, err)
					continue
				}
			}
			if err := c.m.Boot(entry); err != nil {
				fmt.Fprintln(c.out, err)
			}

		case "x":
			if err := c.m.Execute(); err != nil {
				fmt.Fprintln(c.out, err)
				continue
			}
			fmt.Fprintf(c.out, "Final stack:\n%s\n", c.m.SExprString(c.m.s))

		case "n":
			done, err := c.m.Step()
			if err != nil {
				fmt.Fprintln(c.out, err)
				continue
			}
			if done {
				fmt.Fprintln(c.out, "halted")
			}

		case "p":
			fmt.Fprintf(c.out, "S: %s\nE: %s\nC: %s\nD: %s\n",
				c.m.SExprString(c.m.s), c.m.SExprString(c.m.e),
				c.m.SExprString(c.m.c), c.m.SExprString(c.m.d))

		case "r":
			c.m.Reset()

		case "q":
			return nil

		default:
			fmt.Fprintf(c.out, "unknown command %q\n", cmd)
		}
	}
}
