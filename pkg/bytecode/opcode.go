package bytecode

import "fmt"

type Opcode uint8

// List of supported operations
const (
	OpNop Opcode = iota
	OpPopTop
	OpDupTop
	OpRotTwo

	OpLoadConst
	OpLoadName
	OpStoreName
	OpDeleteName
	OpLoadGlobal
	OpStoreGlobal
	OpLoadFast
	OpStoreFast
	OpLoadAttr

	OpBinaryAdd
	OpBinarySubtract
	OpBinaryMultiply
	OpBinaryTrueDivide
	OpBinaryFloorDivide
	OpBinaryModulo
	OpUnaryNegative
	OpUnaryNot
	OpCompareOp

	OpBuildList
	OpBuildMap
	OpBinarySubscr
	OpStoreSubscr
	OpGetIter
	OpForIter

	OpJumpAbsolute
	OpPopJumpIfFalse
	OpPopJumpIfTrue
	OpSetupLoop
	OpBreakLoop
	OpPopBlock
	OpSetupExcept
	OpPopExcept
	OpRaiseVarargs

	OpMakeFunction
	OpCallFunction
	OpReturnValue

	OpImportName

	opCount
)

// ArgKind describes how an opcode's argument is interpreted
type ArgKind uint8

const (
	ArgNone    ArgKind = iota // no argument
	ArgConst                  // index into the constant table
	ArgName                   // index into the name table
	ArgJump                   // absolute byte offset
	ArgCount                  // item or argument count
	ArgCompare                // comparison operator
	ArgFunc                   // index into the function table
)

var opNames = [opCount]string{
	OpNop:               "NOP",
	OpPopTop:            "POP_TOP",
	OpDupTop:            "DUP_TOP",
	OpRotTwo:            "ROT_TWO",
	OpLoadConst:         "LOAD_CONST",
	OpLoadName:          "LOAD_NAME",
	OpStoreName:         "STORE_NAME",
	OpDeleteName:        "DELETE_NAME",
	OpLoadGlobal:        "LOAD_GLOBAL",
	OpStoreGlobal:       "STORE_GLOBAL",
	OpLoadFast:          "LOAD_FAST",
	OpStoreFast:         "STORE_FAST",
	OpLoadAttr:          "LOAD_ATTR",
	OpBinaryAdd:         "BINARY_ADD",
	OpBinarySubtract:    "BINARY_SUBTRACT",
	OpBinaryMultiply:    "BINARY_MULTIPLY",
	OpBinaryTrueDivide:  "BINARY_TRUE_DIVIDE",
	OpBinaryFloorDivide: "BINARY_FLOOR_DIVIDE",
	OpBinaryModulo:      "BINARY_MODULO",
	OpUnaryNegative:     "UNARY_NEGATIVE",
	OpUnaryNot:          "UNARY_NOT",
	OpCompareOp:         "COMPARE_OP",
	OpBuildList:         "BUILD_LIST",
	OpBuildMap:          "BUILD_MAP",
	OpBinarySubscr:      "BINARY_SUBSCR",
	OpStoreSubscr:       "STORE_SUBSCR",
	OpGetIter:           "GET_ITER",
	OpForIter:           "FOR_ITER",
	OpJumpAbsolute:      "JUMP_ABSOLUTE",
	OpPopJumpIfFalse:    "POP_JUMP_IF_FALSE",
	OpPopJumpIfTrue:     "POP_JUMP_IF_TRUE",
	OpSetupLoop:         "SETUP_LOOP",
	OpBreakLoop:         "BREAK_LOOP",
	OpPopBlock:          "POP_BLOCK",
	OpSetupExcept:       "SETUP_EXCEPT",
	OpPopExcept:         "POP_EXCEPT",
	OpRaiseVarargs:      "RAISE_VARARGS",
	OpMakeFunction:      "MAKE_FUNCTION",
	OpCallFunction:      "CALL_FUNCTION",
	OpReturnValue:       "RETURN_VALUE",
	OpImportName:        "IMPORT_NAME",
}

var opArgKinds = [opCount]ArgKind{
	OpLoadConst:      ArgConst,
	OpLoadName:       ArgName,
	OpStoreName:      ArgName,
	OpDeleteName:     ArgName,
	OpLoadGlobal:     ArgName,
	OpStoreGlobal:    ArgName,
	OpLoadFast:       ArgName,
	OpStoreFast:      ArgName,
	OpLoadAttr:       ArgName,
	OpImportName:     ArgName,
	OpCompareOp:      ArgCompare,
	OpBuildList:      ArgCount,
	OpBuildMap:       ArgCount,
	OpCallFunction:   ArgCount,
	OpRaiseVarargs:   ArgCount,
	OpForIter:        ArgJump,
	OpJumpAbsolute:   ArgJump,
	OpPopJumpIfFalse: ArgJump,
	OpPopJumpIfTrue:  ArgJump,
	OpSetupLoop:      ArgJump,
	OpSetupExcept:    ArgJump,
	OpMakeFunction:   ArgFunc,
}

var opsByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op, name := range opNames {
		m[name] = Opcode(op)
	}
	return m
}()

// String returns the mnemonic of the opcode
func (op Opcode) String() string {
	if op.Valid() {
		return opNames[op]
	}
	return fmt.Sprintf("OP_%d", uint8(op))
}

// Valid reports whether op belongs to the supported opcode set
func (op Opcode) Valid() bool {
	return op < opCount
}

// ArgKind returns how the argument of op is interpreted
func (op Opcode) ArgKind() ArgKind {
	if !op.Valid() {
		return ArgNone
	}
	return opArgKinds[op]
}

// HasArg reports whether op takes an argument
func (op Opcode) HasArg() bool {
	return op.ArgKind() != ArgNone
}

// IsJump reports whether the argument of op is a jump target
func (op Opcode) IsJump() bool {
	return op.ArgKind() == ArgJump
}

// IsStore reports whether op binds a name in a scope
func (op Opcode) IsStore() bool {
	return op == OpStoreName || op == OpStoreGlobal || op == OpStoreFast
}

// IsImport reports whether op is an import operation
func (op Opcode) IsImport() bool {
	return op == OpImportName
}

// LookupOpcode maps a mnemonic to its opcode
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opsByName[name]
	return op, ok
}

// Comparison operators understood by COMPARE_OP, indexed by argument
var CompareOps = []string{"<", "<=", "==", "!=", ">", ">="}

// LookupCompare returns the COMPARE_OP argument for an operator
func LookupCompare(op string) (int, bool) {
	for i, c := range CompareOps {
		if c == op {
			return i, true
		}
	}
	return 0, false
}
