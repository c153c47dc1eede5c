package asm

import (
	"fmt"

	"hopvm/pkg/color"
	"hopvm/pkg/lexer"
)

// addError records a parsing error with location
func (p *Parser) addError(msg string) {
	pos := p.currentToken.Pos
	formatted := color.RedText(msg) + " at " + color.YellowText(fmt.Sprintf("Line: %d, Column %d", pos.Line, pos.Column))
	p.errors = append(p.errors, formatted)
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

// categorizeError provides a specific error message based on expected symbol and current token
func (p *Parser) categorizeError(expected string, current lexer.Token) string {
	if current.Type == lexer.NEWLINE || current.Type == lexer.EOF {
		switch expected {
		case "id", "label":
			return "Missing " + expected + " argument"
		case "literal":
			return "Missing constant"
		case "num":
			return "Missing number"
		case "comparison":
			return "Missing comparison operator"
		}
	}

	switch expected {
	case "opcode":
		if current.Type == lexer.ID {
			return "Opcodes must be upper case, found `" + current.Lexeme + "`"
		}
		return "Expected opcode, directive or label, found `" + current.Lexeme + "`"
	case "id":
		if current.Type == lexer.STRING {
			return "Names must not be quoted"
		}
		return "Expected identifier, found `" + current.Lexeme + "`"
	case "label":
		return "Expected label, found `" + current.Lexeme + "`"
	case "literal":
		if current.Type == lexer.ID {
			return "Missing quotes around string"
		}
		return "Expected constant, found `" + current.Lexeme + "`"
	case "num":
		return "Expected number, found `" + current.Lexeme + "`"
	case "comparison":
		return "Expected comparison operator, found `" + current.Lexeme + "`"
	}

	return "Syntax error"
}
