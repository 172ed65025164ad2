// Command webplatform drives the native bridge against a scripting host.
//
// Usage:
//
//	webplatform run [-config file]     run the to-do demo and print the document
//	webplatform probe [code]           print the syscall probe's answer for code
//	webplatform console [-config file] interactive event console on the goja host
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/6over3/webplatform"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCmd(args, os.Stdout)
	case "probe":
		err = probeCmd(args, os.Stdout)
	case "console":
		err = consoleCmd(args)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: webplatform <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run [-config file]      run the to-do demo and print the document")
	fmt.Fprintln(w, "  probe [code]            print the syscall probe's answer for code (default 355)")
	fmt.Fprintln(w, "  console [-config file]  interactive event console on the goja host")
}

func probeCmd(args []string, stdout io.Writer) error {
	// Codes may be negative, so args are not parsed as flags.
	if len(args) > 1 {
		return fmt.Errorf("probe takes at most one code, got %d", len(args))
	}
	code := int64(355)
	if len(args) == 1 {
		var err error
		code, err = strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid code %q: %w", args[0], err)
		}
	}
	fmt.Fprintln(stdout, webplatform.Syscall(int32(code)))
	return nil
}
