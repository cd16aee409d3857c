package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestTokenizeKeywords(t *testing.T) {
	toks := Tokenize("var x = funct try catch break continue return")
	assert.Equal(t, []TokenType{Var, Identifier, Equals, Funct, Try, Catch, Break, Continue, Return}, types(toks))
}

func TestTokenizeNumbers(t *testing.T) {
	toks := Tokenize("42 3.25")
	require.Len(t, toks, 2)
	assert.Equal(t, "42", toks[0].Value)
	assert.Equal(t, "3.25", toks[1].Value)
	assert.Equal(t, Number, toks[1].Type)
}

func TestTokenizeMemberDotNotFraction(t *testing.T) {
	toks := Tokenize("x.y")
	assert.Equal(t, []TokenType{Identifier, Dot, Identifier}, types(toks))
}

func TestTokenizeOperators(t *testing.T) {
	toks := Tokenize("+ - * / % == != <= >= < > && || ++ --")
	assert.Equal(t, []TokenType{
		BinaryOperator, BinaryOperator, BinaryOperator, BinaryOperator, Modulo,
		ComparisonOperator, ComparisonOperator, ComparisonOperator, ComparisonOperator,
		ComparisonOperator, ComparisonOperator, LogicalOperator, LogicalOperator,
		Increment, Decrement,
	}, types(toks))
}

func TestTokenizeString(t *testing.T) {
	toks := Tokenize(`"hello world"`)
	require.Len(t, toks, 1)
	assert.Equal(t, String, toks[0].Type)
	assert.Equal(t, "hello world", toks[0].Value)
}

func TestTokenizeComments(t *testing.T) {
	toks := Tokenize("1 // ignored\n2")
	require.Len(t, toks, 2)
	assert.Equal(t, "1", toks[0].Value)
	assert.Equal(t, "2", toks[1].Value)
}

func TestTokenizeForRange(t *testing.T) {
	toks := Tokenize("for range (i, 10)")
	assert.Equal(t, ForRange, toks[0].Type)
}

func TestTokenizeLineColumns(t *testing.T) {
	toks := Tokenize("a\n  b")
	require.Len(t, toks, 2)
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[1].Column)
}
