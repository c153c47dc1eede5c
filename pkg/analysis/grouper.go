package analysis

import (
	"errors"
	"fmt"

	"hopvm/pkg/bytecode"
)

var (
	ErrEmptyProgram = errors.New("empty instruction stream")
	ErrLineMismatch = errors.New("instruction line disagrees with its line marker")
)

// LineBlock is the run of instructions that belongs to one source line
type LineBlock struct {
	Line         int
	Instructions []bytecode.Instruction
}

// Start returns the offset of the first instruction
func (b LineBlock) Start() int {
	return b.Instructions[0].Offset
}

// End returns the offset one past the last instruction
func (b LineBlock) End() int {
	return b.Instructions[len(b.Instructions)-1].Offset + bytecode.InstrSize
}

// IsImport reports whether the block performs an import
func (b LineBlock) IsImport() bool {
	for _, in := range b.Instructions {
		if in.Op.IsImport() {
			return true
		}
	}
	return false
}

// ImportBinding is a library bound to a global name by an import line
type ImportBinding struct {
	Line    int
	Library string
	Name    string
}

// GroupLines partitions the module code into line blocks and sets aside the
// import-only blocks.
func GroupLines(code *bytecode.CodeObject) (blocks, imports []LineBlock, err error) {
	if len(code.Instructions) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyProgram, code.Name)
	}

	var all []LineBlock
	var current []bytecode.Instruction
	line := code.Instructions[0].Line

	for _, in := range code.Instructions {
		if in.StartsLine != 0 && len(current) > 0 {
			all = append(all, LineBlock{Line: line, Instructions: current})
			current = nil
		}
		if in.StartsLine != 0 {
			line = in.StartsLine
		}
		if in.Line != 0 && in.Line != line {
			return nil, nil, fmt.Errorf("%w: offset %d is on line %d inside line %d", ErrLineMismatch, in.Offset, in.Line, line)
		}
		current = append(current, in)
	}
	all = append(all, LineBlock{Line: line, Instructions: current})

	for _, b := range all {
		if b.IsImport() {
			imports = append(imports, b)
		} else {
			blocks = append(blocks, b)
		}
	}
	return blocks, imports, nil
}

// ImportBindings extracts the library bindings of import blocks. Each
// IMPORT_NAME binds the target of the next store, so an aliased import
// rebinds the alias.
func ImportBindings(code *bytecode.CodeObject, imports []LineBlock) ([]ImportBinding, error) {
	var bindings []ImportBinding
	for _, b := range imports {
		var pending *ImportBinding
		for _, in := range b.Instructions {
			switch {
			case in.Op.IsImport():
				lib, err := code.NameAt(in.Arg)
				if err != nil {
					return nil, err
				}
				if pending != nil {
					bindings = append(bindings, *pending)
				}
				pending = &ImportBinding{Line: b.Line, Library: lib, Name: lib}

			case in.Op.IsStore() && pending != nil:
				name, err := code.NameAt(in.Arg)
				if err != nil {
					return nil, err
				}
				pending.Name = name
				bindings = append(bindings, *pending)
				pending = nil
			}
		}
		if pending != nil {
			bindings = append(bindings, *pending)
		}
	}
	return bindings, nil
}
