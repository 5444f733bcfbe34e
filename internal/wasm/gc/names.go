// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package gc

import (
	"fmt"

	"github.com/cdetrio/wasm-gc/internal/wasm/module"
)

// remapNameSection rebuilds the decoded name section against the new
// function numbering: entries naming dead functions are dropped and
// surviving entries are renumbered. Function names are optionally
// demangled; local names and the module name are passed through as-is.
func (r *remapContext) remapNameSection(m *module.Module) error {
	funcs := m.Names.Functions[:0]
	for _, nm := range m.Names.Functions {
		if int(nm.Index) >= len(r.functions) {
			return fmt.Errorf("function name map references function %d out of range", nm.Index)
		}
		n := r.functions[nm.Index]
		if n == dead {
			r.logger.WithFields(map[string]interface{}{"index": nm.Index, "name": nm.Name}).Debug("removing name of dead function")
			continue
		}
		name := nm.Name
		if r.demangle {
			name = r.demangler(name)
		}
		if n != nm.Index || name != nm.Name {
			r.logger.WithFields(map[string]interface{}{"old": nm.Index, "new": n, "name": name}).Debug("remapping symbol")
		}
		funcs = append(funcs, module.NameMap{Index: n, Name: name})
	}
	m.Names.Functions = funcs

	locals := m.Names.Locals[:0]
	for _, l := range m.Names.Locals {
		if int(l.FuncIndex) >= len(r.functions) {
			return fmt.Errorf("local name map references function %d out of range", l.FuncIndex)
		}
		n := r.functions[l.FuncIndex]
		if n == dead {
			continue
		}
		l.FuncIndex = n
		locals = append(locals, l)
	}
	m.Names.Locals = locals

	return nil
}
