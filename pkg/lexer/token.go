package lexer

import (
	"fmt"
)

type TokenType int

type Token struct {
	Type    TokenType // Type of the token
	Lexeme  string    // Actual string from the listing
	Literal string    // Literal value (if applicable), empty string if not
	Pos     Position  // Position in the listing
}

// NewToken creates a new Token instance
func NewToken(tokenType TokenType, lexeme string, literal string, Pos Position) Token {
	return Token{
		Type:    tokenType,
		Lexeme:  lexeme,
		Literal: literal,
		Pos:     Pos,
	}
}

const (
	EOF     TokenType = iota // End of file
	ILLEGAL                  // unrecognized character
	NEWLINE                  // end of a listing line

	DIRECTIVE // .func .line .end
	LABEL     // name:
	OPCODE    // LOAD_NAME

	TRUE  // True
	FALSE // False
	NONE  // None

	ID     // identifier
	NUM    // number
	STRING // string literal
	CMP    // < <= == != > >=
)

var tokenNames = map[TokenType]string{
	EOF:       "EOF",
	ILLEGAL:   "ILLEGAL",
	NEWLINE:   "newline",
	DIRECTIVE: "directive",
	LABEL:     "label",
	OPCODE:    "opcode",
	TRUE:      "True",
	FALSE:     "False",
	NONE:      "None",
	ID:        "id",
	NUM:       "num",
	STRING:    "string",
	CMP:       "comparison",
}

// String returns the name of the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// String returns a printable form of the token
func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %s", t.Type, t.Lexeme, t.Pos)
}

// IsLiteral reports whether the token can be used as a LOAD_CONST argument
func (t Token) IsLiteral() bool {
	switch t.Type {
	case NUM, STRING, TRUE, FALSE, NONE:
		return true
	default:
		return false
	}
}
