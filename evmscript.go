// Package evmscript compiles helper-catalogue scripts — a small embedded
// DSL for hand-assembling EVM bytecode — into finished runtime hex.
package evmscript

import (
	"os"

	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/host"
)

// Preprocess compiles source under filename (used only for error
// attribution) and returns its hex bytecode, with no leading "0x".
// extraBindings makes additional named values available to the script as
// globals, on top of the built-in helper catalogue.
func Preprocess(source string, extraBindings map[string]any, filename string) (string, error) {
	if filename == "" {
		filename = "<script>"
	}
	return host.Compile(filename, []byte(source), extraBindings)
}

// PreprocessFile reads path and compiles its contents, as Preprocess.
func PreprocessFile(path string, extraBindings map[string]any) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", evmerr.Wrap(evmerr.InputValidation, err, "reading %s", path)
	}
	return host.Compile(path, src, extraBindings)
}
