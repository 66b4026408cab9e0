package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_YesNo(t *testing.T) {
	cases := map[string]TokenKind{
		"yes":       TokenYes,
		"  YES  ":   TokenYes,
		"Y":         TokenYes,
		"yeah!":     TokenYes,
		"yep":       TokenYes,
		"1":         TokenYes,
		"yes I did": TokenYes,
		"no":        TokenNo,
		"N":         TokenNo,
		"Nope.":     TokenNo,
		"2":         TokenNo,
		"not yet":   TokenNo,
		"":          TokenUnrecognized,
		"   ":       TokenUnrecognized,
		"maybe":     TokenUnrecognized,
		"3":         TokenUnrecognized,
		"know":      TokenUnrecognized,
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in, YesNo()).Kind, "input %q", in)
	}
}

func TestParse_MenuDigits(t *testing.T) {
	shape := Menu(ProjectTypeOptions)
	for n := 1; n <= len(ProjectTypeOptions); n++ {
		tok := Parse(" "+string(rune('0'+n))+" ", shape)
		assert.Equal(t, TokenChoice, tok.Kind)
		assert.Equal(t, n, tok.Choice)
	}
	assert.Equal(t, Unrecognized, Parse("0", shape))
	assert.Equal(t, Unrecognized, Parse("8", shape))
	assert.Equal(t, Unrecognized, Parse("1 2", shape))
}

func TestParse_MenuAliases(t *testing.T) {
	tests := []struct {
		in      string
		options []Option
		want    int
	}{
		{"Appt set for Tuesday", OutcomeOptions, 1},
		{"they want a QUOTE", OutcomeOptions, 2},
		{"not interested", OutcomeOptions, 3},
		{"something else", OutcomeOptions, 4},
		{"Mold", ProjectTypeOptions, 2},
		{"reconstruction", ProjectTypeOptions, 3},
		{"vandalism", ProjectTypeOptions, 7},
		{"house", PropertyTypeOptions, 1},
		{"Business", PropertyTypeOptions, 2},
		{"mobile home", ResidentialSubtypeOptions, 3},
		{"plumber", ReferralSourceOptions, 6},
		{"google", ReferralSourceOptions, 7},
	}
	for _, tt := range tests {
		tok := Parse(tt.in, Menu(tt.options))
		assert.Equal(t, TokenChoice, tok.Kind, "input %q", tt.in)
		assert.Equal(t, tt.want, tok.Choice, "input %q", tt.in)
	}
}

func TestParse_MenuUnrecognized(t *testing.T) {
	assert.Equal(t, Unrecognized, Parse("banana", Menu(OutcomeOptions)))
	assert.Equal(t, Unrecognized, Parse("upset", Menu(OutcomeOptions)))
	assert.Equal(t, Unrecognized, Parse("?!", Menu(PropertyTypeOptions)))
}

func TestParse_FreeText(t *testing.T) {
	tok := Parse("  State Farm  ", FreeText())
	assert.Equal(t, TokenText, tok.Kind)
	assert.Equal(t, "State Farm", tok.Text)
	assert.Equal(t, Unrecognized, Parse(" \n ", FreeText()))
}
