// Package host wires the helper catalogue into a scripting Thread,
// evaluates a script, promotes surviving global bindings to jump
// destinations, and hands the result off to the processor.
package host

import (
	"strings"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/interp"
	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/helpers"
	"github.com/tcoulter/evmscript/internal/processor"
)

// Compile evaluates src as a helper-catalogue script and emits its finished
// hex string. extraBindings are additional global bindings available to the
// script under the names the caller provides, spec.md's "extra_bindings"
// parameter.
func Compile(filename string, src []byte, extraBindings map[string]any) (string, error) {
	rc := action.NewContext()
	catalogue := helpers.New(rc)
	thread := interp.NewThread(catalogue.Builtins(), extraBindings)

	if err := thread.Run(filename, src); err != nil {
		return "", evmerr.Wrap(evmerr.HostEvaluator, err, "evaluating %s", filename)
	}

	labels := promoteLabels(thread.Globals())
	out, err := processor.New(rc).Process(labels)
	if err != nil {
		return "", err
	}
	return out, nil
}

// promoteLabels walks every binding that survived script evaluation and
// still holds an Action's Pointer, marking it a jump destination. Bindings
// whose name starts with "_" are excluded by convention (scratch values the
// script author does not intend to expose as labels).
func promoteLabels(globals map[string]any) map[string]uint32 {
	labels := make(map[string]uint32)
	for name, v := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		ptr, ok := v.(*action.Pointer)
		if !ok {
			continue
		}
		a := ptr.Action()
		a.IsJumpDestination = true
		labels[name] = a.ID
	}
	return labels
}
