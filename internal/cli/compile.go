package cli

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/tcoulter/evmscript"
)

// Compile reads the single script path in args, compiles it, and writes its
// hex bytecode (with a leading "0x") to stdout.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	out, err := evmscript.PreprocessFile(path, nil)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	fmt.Fprintf(stdio.Stdout, "0x%s\n", out)
	return nil
}
