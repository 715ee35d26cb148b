package secd

import (
	"bufio"
	"fmt"
	"io"
)

// ServeUpload drives the hex upload protocol the embedded build
// speaks over its serial port: the peer sends an arbitrary preamble,
// then `>` and `:` to arm the transfer, then one ASCII hex pair per
// code byte, terminated by `<`.  Received pairs are echoed back.
// After each complete upload the pool is reset and the program runs,
// printing the final S to out.  Returns when in is exhausted.
func (m *Machine) ServeUpload(in io.Reader, out io.Writer) error {
	br := bufio.NewReader(in)
	for {
		image, err := readUpload(br, out, m.maxCode)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		m.Reset()
		if err := m.LoadCode(image); err != nil {
			return err
		}
		if err := m.Boot(0); err != nil {
			fmt.Fprintf(out, "%s\r\n", err)
			continue
		}
		if err := m.Execute(); err != nil {
			// The embedded build resets the board here; the
			// pool reset at the top of the loop is the moral
			// equivalent.
			fmt.Fprintf(out, "%s\r\n", err)
			continue
		}
		fmt.Fprintf(out, "\r\nFinal stack:\r\n%s\r\n", m.SExprString(m.s))
	}
}

func readUpload(in *bufio.Reader, out io.Writer, max int) ([]byte, error) {
	var (
		image        []byte
		reading      bool
		waitForColon bool
	)
	for {
		ch, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		if !reading {
			switch {
			case ch == '>':
				waitForColon = true
			case ch == ':' && waitForColon:
				reading = true
				waitForColon = false
			case ch == '\n' || ch == '\r':
				fmt.Fprintf(out, "SECD Machine\r\n")
				waitForColon = false
			default:
				fmt.Fprintf(out, "Unexpected char - %c\r\n", ch)
			}
			continue
		}

		if ch == '<' {
			return image, nil
		}
		ch2, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "%c%c", ch, ch2)
		hi, ok := hexVal(ch)
		lo, ok2 := hexVal(ch2)
		if !ok || !ok2 {
			return nil, fmt.Errorf("invalid character received")
		}
		if len(image) >= max {
			return nil, fmt.Errorf("no more code space")
		}
		image = append(image, hi<<4|lo)
	}
}

func hexVal(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'A' && ch <= 'F':
		return 10 + ch - 'A', true
	case ch >= 'a' && ch <= 'f':
		return 10 + ch - 'a', true
	}
	return 0, false
}
