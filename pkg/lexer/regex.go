package lexer

import "regexp"

// Token regex patterns
var tokenRegexes = map[TokenType]*regexp.Regexp{
	DIRECTIVE: regexp.MustCompile(`^\.[a-z]+\b`),
	LABEL:     regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*:`),

	TRUE:  regexp.MustCompile(`^True\b`),
	FALSE: regexp.MustCompile(`^False\b`),
	NONE:  regexp.MustCompile(`^None\b`),

	OPCODE: regexp.MustCompile(`^[A-Z][A-Z_]*\b`),
	CMP:    regexp.MustCompile(`^(<=|>=|==|!=|<|>)`),

	NUM:    regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?`),
	STRING: regexp.MustCompile(`^"([^"\\]|\\.)*"`),
	ID:     regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*`),
}

var (
	whitespaceRegex = regexp.MustCompile(`^[ \t\r]+`)
	commentRegex    = regexp.MustCompile(`^[;#][^\n]*`)
)

// Token precedence order for matching (longer patterns first)
var tokenPrecedenceOrder = []TokenType{
	DIRECTIVE, LABEL, TRUE, FALSE, NONE, OPCODE, CMP, NUM, STRING, ID,
}

// Match the first token at the start of the string. Whitespace and comments
// are reported as a matched EOF with the skipped text as lexeme.
func MatchToken(s string) (TokenType, string, bool) {
	if s == "" {
		return EOF, "", false
	} else if s[0] == '\n' {
		return NEWLINE, "\n", true
	} else if match := whitespaceRegex.FindString(s); match != "" {
		return EOF, match, true
	} else if match := commentRegex.FindString(s); match != "" {
		return EOF, match, true
	}

	for _, tokenType := range tokenPrecedenceOrder {
		if match := tokenRegexes[tokenType].FindString(s); match != "" {
			return tokenType, match, true
		}
	}

	return ILLEGAL, string(s[0]), false
}
