package lexer_test

import (
	"testing"

	"hopvm/pkg/lexer"
)

func TestTokens(t *testing.T) {
	input := ".line 1\n" +
		"loop:\n" +
		"    LOAD_NAME x ; trailing comment\n" +
		"    COMPARE_OP <=\n" +
		"    LOAD_CONST \"hi\\n\"\n" +
		"    LOAD_CONST None\n"
	mylexer := lexer.NewLexer(input)

	expectedTokens := []lexer.TokenType{
		lexer.DIRECTIVE, lexer.NUM, lexer.NEWLINE,
		lexer.LABEL, lexer.NEWLINE,
		lexer.OPCODE, lexer.ID, lexer.NEWLINE,
		lexer.OPCODE, lexer.CMP, lexer.NEWLINE,
		lexer.OPCODE, lexer.STRING, lexer.NEWLINE,
		lexer.OPCODE, lexer.NONE, lexer.NEWLINE,
		lexer.EOF,
	}

	for i, expected := range expectedTokens {
		token := mylexer.NextToken()
		if token.Type != expected {
			t.Errorf("Token %d: expected %s, got %s", i, expected, token)
		}
	}
}

func TestComments(t *testing.T) {
	input := `# header comment
; another comment
    NOP # inline`

	mylexer := lexer.NewLexer(input)
	expectedTokens := []lexer.TokenType{
		lexer.NEWLINE, lexer.NEWLINE, lexer.OPCODE, lexer.EOF,
	}

	for i, expected := range expectedTokens {
		token := mylexer.NextToken()
		if token.Type != expected {
			t.Errorf("Token %d: expected %s, got %s", i, expected, token)
		}
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		input       string
		expected    lexer.TokenType
		literal     string
		description string
	}{
		{"42", lexer.NUM, "42", "integer"},
		{"-7", lexer.NUM, "-7", "negative integer"},
		{"3.14", lexer.NUM, "3.14", "float"},
		{"1e-5", lexer.NUM, "1e-5", "scientific notation"},
		{`"a b"`, lexer.STRING, "a b", "string"},
		{`"tab\t"`, lexer.STRING, "tab\t", "string with escape"},
		{"True", lexer.TRUE, "True", "true keyword"},
		{"False", lexer.FALSE, "False", "false keyword"},
		{"total_2", lexer.ID, "total_2", "identifier"},
		{"done:", lexer.LABEL, "done", "label"},
		{".func", lexer.DIRECTIVE, "func", "directive"},
		{"!=", lexer.CMP, "!=", "comparison"},
	}

	for _, test := range tests {
		token := lexer.NewLexer(test.input).NextToken()
		if token.Type != test.expected {
			t.Errorf("Input %s (%s): expected %s, got %s", test.input, test.description, test.expected, token.Type)
		}
		if token.Literal != test.literal {
			t.Errorf("Input %s (%s): expected literal %q, got %q", test.input, test.description, test.literal, token.Literal)
		}
	}
}

func TestPositions(t *testing.T) {
	l := lexer.NewLexer("NOP\n  POP_TOP")

	first := l.NextToken()
	if first.Pos.Line != 1 || first.Pos.Column != 1 {
		t.Errorf("unexpected position for first token: %s", first.Pos)
	}

	l.NextToken() // newline
	if peeked := l.Peek(); peeked.Type != lexer.OPCODE {
		t.Fatalf("expected to peek an opcode, got %s", peeked)
	}

	second := l.NextToken()
	if second.Pos.Line != 2 || second.Pos.Column != 3 {
		t.Errorf("unexpected position for second token: %s", second.Pos)
	}
}

func TestIllegal(t *testing.T) {
	token := lexer.NewLexer("@").NextToken()
	if token.Type != lexer.ILLEGAL {
		t.Errorf("expected ILLEGAL, got %s", token)
	}
}

func TestMatchToken(t *testing.T) {
	tests := []struct {
		input  string
		want   lexer.TokenType
		lexeme string
	}{
		{".func add", lexer.DIRECTIVE, ".func"},
		{"exit: POP_BLOCK", lexer.LABEL, "exit:"},
		{"True ", lexer.TRUE, "True"},
		{"False", lexer.FALSE, "False"},
		{"Nonesuch", lexer.ID, "Nonesuch"},
		{"BINARY_ADD", lexer.OPCODE, "BINARY_ADD"},
		{"!= 3", lexer.CMP, "!="},
		{"-2.5e3", lexer.NUM, "-2.5e3"},
		{`"a\"b" x`, lexer.STRING, `"a\"b"`},
		{"read_lines(", lexer.ID, "read_lines"},
		{"\nx", lexer.NEWLINE, "\n"},
		{"  \tx", lexer.EOF, "  \t"},
		{"# note\nx", lexer.EOF, "# note"},
	}

	for _, test := range tests {
		got, lexeme, ok := lexer.MatchToken(test.input)
		if !ok || got != test.want || lexeme != test.lexeme {
			t.Errorf("%q: expected %s %q, got %s %q (matched %v)", test.input, test.want, test.lexeme, got, lexeme, ok)
		}
	}

	if got, _, ok := lexer.MatchToken("@"); ok || got != lexer.ILLEGAL {
		t.Errorf("expected ILLEGAL, got %s", got)
	}
}
