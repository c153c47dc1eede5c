package lexer

import "strconv"

type Lexer struct {
	input    string // input string to be tokenized
	length   int    // length of the input string
	position int    // current position in the input string
	line     int    // current line number for error reporting
	column   int    // current column number for error reporting
}

// Create a new lexer instance
func NewLexer(s string) *Lexer {
	return &Lexer{
		input:    s,
		length:   len(s),
		position: 0,
		line:     1,
		column:   1,
	}
}

// Get the next token from the input
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	// End of input
	if l.position >= l.length {
		return NewToken(EOF, "", "", l.currentPosition())
	}

	// Regex match the first token it sees from the remaining input from current position to the end
	remaining := l.input[l.position:]
	pos := l.currentPosition()
	tokenType, lexeme, matched := MatchToken(remaining)

	if !matched {
		char := string(l.input[l.position])
		l.advance(1)
		return NewToken(ILLEGAL, char, "", pos)
	}

	var literal string
	switch tokenType {
	case STRING:
		unquoted, err := strconv.Unquote(lexeme)
		if err != nil {
			l.advance(len(lexeme))
			return NewToken(ILLEGAL, lexeme, "", pos)
		}
		literal = unquoted
	case LABEL:
		literal = lexeme[:len(lexeme)-1]
	case DIRECTIVE:
		literal = lexeme[1:]
	default:
		literal = lexeme
	}

	l.advance(len(lexeme))
	return NewToken(tokenType, lexeme, literal, pos)
}

// View next token without advancing the position
func (l *Lexer) Peek() Token {
	// save state
	cpos := l.position
	cline := l.line
	ccol := l.column

	token := l.NextToken()

	// restore state
	l.position = cpos
	l.line = cline
	l.column = ccol

	return token
}

// Check if there are more characters to read
func (l *Lexer) HasMore() bool {
	return l.position < l.length
}

// Skip blanks and comments; newlines are significant and left in place
func (l *Lexer) skipWhitespace() {
	for l.position < l.length {
		tokenType, lexeme, matched := MatchToken(l.input[l.position:])
		if !matched || tokenType != EOF || lexeme == "" {
			return
		}
		l.advance(len(lexeme))
	}
}

// Advance the lexer position by n characters
func (l *Lexer) advance(n int) {
	for range n {
		if l.position >= l.length {
			break
		}

		if l.input[l.position] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}

		l.position++
	}
}

// Get the current position of the lexer
func (l *Lexer) currentPosition() Position {
	return Position{
		Line:   l.line,
		Column: l.column,
		Offset: l.position,
	}
}
