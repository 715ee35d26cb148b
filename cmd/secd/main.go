package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/gosecd/secd"
)

type args struct {
	codePath *string

	// Debugging Options

	asmOnly     *bool
	interactive *bool
	trace       *bool

	// Execution Options

	upload    *bool
	entry     *int
	cells     *int
	codeSize  *int
	stepLimit *int
}

func readArgs() *args {
	a := &args{
		codePath: flag.String("code", "", "Path to the binary code image"),

		asmOnly:     flag.Bool("asm-only", false, "Print the disassembly of the code image instead of running it"),
		interactive: flag.Bool("interactive", false, "Drops into a shell"),
		trace:       flag.Bool("trace", false, "Log registers and opcodes while executing"),

		upload:    flag.Bool("upload", false, "Serve the hex upload protocol on stdin/stdout"),
		entry:     flag.Int("entry", 0, "Code offset execution starts at"),
		cells:     flag.Int("cells", 1000, "Cell pool size"),
		codeSize:  flag.Int("code-size", 1000, "Code image size limit"),
		stepLimit: flag.Int("step-limit", 0, "Abort after this many instructions, 0 for no limit"),
	}

	flag.Parse()

	return a
}

func main() {
	a := readArgs()

	cfg := secd.NewConfig()
	cfg.SetInt("machine.cells", *a.cells)
	cfg.SetInt("machine.code_size", *a.codeSize)
	cfg.SetInt("machine.step_limit", *a.stepLimit)
	cfg.SetBool("machine.trace", *a.trace)
	m := secd.New(cfg)

	if *a.codePath != "" {
		if err := m.LoadCodeFile(*a.codePath); err != nil {
			glog.Fatal(err)
		}
	}

	switch {
	case *a.asmOnly:
		requireCode(a)
		asm, err := secd.Disassemble(m.Code())
		if err != nil {
			glog.Fatal(err)
		}
		fmt.Print(asm)

	case *a.interactive:
		if err := secd.NewConsole(m, os.Stdin, os.Stdout).Run(); err != nil {
			glog.Fatal(err)
		}

	case *a.upload:
		if err := m.ServeUpload(os.Stdin, os.Stdout); err != nil {
			glog.Fatal(err)
		}

	default:
		requireCode(a)
		if err := m.Boot(*a.entry); err != nil {
			glog.Fatal(err)
		}
		if err := m.Execute(); err != nil {
			glog.Fatal(err)
		}
		fmt.Printf("\nFinal stack:\n%s\n", m.SExprString(m.Stack()))
	}
}

func requireCode(a *args) {
	if *a.codePath == "" {
		glog.Fatal("Code image not informed")
	}
}
