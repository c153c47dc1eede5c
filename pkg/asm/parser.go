package asm

import (
	"errors"
	"strconv"

	"hopvm/pkg/bytecode"
	"hopvm/pkg/lexer"

	"github.com/charmbracelet/log"
)

type Parser struct {
	lexer        *lexer.Lexer      // lexer instance
	module       *bytecode.Builder // module-level builder
	current      *bytecode.Builder // builder receiving instructions (module or function body)
	currentToken lexer.Token       // current token
	errors       []string          // list of errors
}

// NewParser creates a new parser instance for a listing named name
func NewParser(l *lexer.Lexer, name string) *Parser {
	module := bytecode.NewBuilder(name)
	p := &Parser{
		lexer:   l,
		module:  module,
		current: module,
		errors:  []string{},
	}

	// Initialize current token
	p.nextToken()

	return p
}

// Assemble parses a listing and returns the module code object
func Assemble(name, src string) (*bytecode.CodeObject, error) {
	p := NewParser(lexer.NewLexer(src), name)
	p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		joined := make([]error, 0, len(errs))
		for _, e := range errs {
			joined = append(joined, errors.New(e))
		}
		return nil, errors.Join(joined...)
	}
	return p.Code()
}

// Parse consumes the whole listing
func (p *Parser) Parse() {
	for p.currentToken.Type != lexer.EOF {
		switch p.currentToken.Type {
		case lexer.NEWLINE:
			p.nextToken()
		case lexer.DIRECTIVE:
			p.parseDirective()
		case lexer.LABEL:
			if err := p.current.Label(p.currentToken.Literal); err != nil {
				p.addError(err.Error())
			}
			p.nextToken()
		case lexer.OPCODE:
			p.parseInstruction()
		default:
			p.addError(p.categorizeError("opcode", p.currentToken))
			p.skipLine()
		}
	}

	if p.current != p.module {
		p.addError("Missing .end for function")
	}
}

// Code resolves labels and function references of the parsed listing
func (p *Parser) Code() (*bytecode.CodeObject, error) {
	return p.module.Finish()
}

// nextToken advances to the next token from the lexer
func (p *Parser) nextToken() {
	p.currentToken = p.lexer.NextToken()
}

// parseDirective handles .line, .func and .end
func (p *Parser) parseDirective() {
	directive := p.currentToken.Literal
	p.nextToken()

	switch directive {
	case "line":
		n, ok := p.expectInt()
		if !ok {
			p.skipLine()
			return
		}
		if n <= 0 {
			p.addError("Line numbers must be positive")
		}
		p.current.Line(n)

	case "func":
		if p.currentToken.Type != lexer.ID {
			p.addError(p.categorizeError("id", p.currentToken))
			p.skipLine()
			return
		}
		name := p.currentToken.Literal
		p.nextToken()

		var params []string
		for p.currentToken.Type == lexer.ID {
			params = append(params, p.currentToken.Literal)
			p.nextToken()
		}

		fb, err := p.current.Func(name, params...)
		if err != nil {
			p.addError(err.Error())
			p.skipLine()
			return
		}
		log.Debug("Declared function", "name", name, "params", params)
		p.current = fb

	case "end":
		if p.current == p.module {
			p.addError("Unexpected .end outside of a function")
		}
		p.current = p.module

	default:
		p.addError("Unknown directive ." + directive)
		p.skipLine()
		return
	}

	p.expectLineEnd()
}

// parseInstruction handles one opcode and its argument
func (p *Parser) parseInstruction() {
	op, ok := bytecode.LookupOpcode(p.currentToken.Lexeme)
	if !ok {
		p.addError("Unknown opcode " + p.currentToken.Lexeme)
		p.skipLine()
		return
	}
	p.nextToken()

	switch op.ArgKind() {
	case bytecode.ArgNone:
		p.current.Emit(op, 0)

	case bytecode.ArgConst:
		c, ok := p.parseConst()
		if !ok {
			p.skipLine()
			return
		}
		p.current.EmitConst(op, c)

	case bytecode.ArgName:
		// upper-case identifiers lex as opcodes
		if p.currentToken.Type != lexer.ID && p.currentToken.Type != lexer.OPCODE {
			p.addError(p.categorizeError("id", p.currentToken))
			p.skipLine()
			return
		}
		p.current.EmitName(op, p.currentToken.Lexeme)
		p.nextToken()

	case bytecode.ArgJump:
		if p.currentToken.Type != lexer.ID {
			p.addError(p.categorizeError("label", p.currentToken))
			p.skipLine()
			return
		}
		p.current.EmitJump(op, p.currentToken.Literal)
		p.nextToken()

	case bytecode.ArgCount:
		n, ok := p.expectInt()
		if !ok {
			p.skipLine()
			return
		}
		if n < 0 {
			p.addError("Count must not be negative")
		}
		p.current.Emit(op, n)

	case bytecode.ArgCompare:
		if p.currentToken.Type != lexer.CMP {
			p.addError(p.categorizeError("comparison", p.currentToken))
			p.skipLine()
			return
		}
		idx, _ := bytecode.LookupCompare(p.currentToken.Lexeme)
		p.current.Emit(op, idx)
		p.nextToken()

	case bytecode.ArgFunc:
		if p.currentToken.Type != lexer.ID {
			p.addError(p.categorizeError("id", p.currentToken))
			p.skipLine()
			return
		}
		p.current.EmitFunc(op, p.currentToken.Literal)
		p.nextToken()
	}

	p.expectLineEnd()
}

// parseConst converts a literal token into a constant table entry
func (p *Parser) parseConst() (bytecode.Const, bool) {
	tok := p.currentToken
	if !tok.IsLiteral() {
		p.addError(p.categorizeError("literal", tok))
		return bytecode.Const{}, false
	}
	p.nextToken()

	switch tok.Type {
	case lexer.NUM:
		if i, err := strconv.ParseInt(tok.Literal, 10, 64); err == nil {
			return bytecode.Const{Kind: bytecode.ConstInt, I64: i}, true
		}
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.addError("Invalid number " + tok.Literal)
			return bytecode.Const{}, false
		}
		return bytecode.Const{Kind: bytecode.ConstFloat, F64: f}, true
	case lexer.STRING:
		return bytecode.Const{Kind: bytecode.ConstString, Str: tok.Literal}, true
	case lexer.TRUE:
		return bytecode.Const{Kind: bytecode.ConstBool, Bool: true}, true
	case lexer.FALSE:
		return bytecode.Const{Kind: bytecode.ConstBool, Bool: false}, true
	default:
		return bytecode.Const{Kind: bytecode.ConstNone}, true
	}
}

// expectInt consumes an integer literal
func (p *Parser) expectInt() (int, bool) {
	if p.currentToken.Type != lexer.NUM {
		p.addError(p.categorizeError("num", p.currentToken))
		return 0, false
	}
	n, err := strconv.Atoi(p.currentToken.Literal)
	if err != nil {
		p.addError("Expected integer, found " + p.currentToken.Lexeme)
		return 0, false
	}
	p.nextToken()
	return n, true
}

// expectLineEnd requires the statement to end here
func (p *Parser) expectLineEnd() {
	switch p.currentToken.Type {
	case lexer.NEWLINE:
		p.nextToken()
	case lexer.EOF:
	default:
		p.addError("Unexpected " + p.currentToken.Type.String() + " `" + p.currentToken.Lexeme + "` at end of statement")
		p.skipLine()
	}
}

// skipLine discards tokens up to and including the next newline
func (p *Parser) skipLine() {
	for p.currentToken.Type != lexer.NEWLINE && p.currentToken.Type != lexer.EOF {
		p.nextToken()
	}
	if p.currentToken.Type == lexer.NEWLINE {
		p.nextToken()
	}
}
