// Package conversation holds the qualification dialogue logic: the reply parser, the
// per-state transition table and the SMS templates. Nothing in this package performs I/O.
package conversation

import (
	"strconv"
	"strings"
	"unicode"
)

// ShapeKind is the kind of reply a state expects.
type ShapeKind int

const (
	ShapeYesNo ShapeKind = iota
	ShapeMenu
	ShapeFreeText
)

// Option is one numbered menu entry. Aliases are lower-case keywords accepted in place of the digit.
type Option struct {
	Label   string
	Aliases []string
}

// Shape describes what a state accepts. Options is only used by ShapeMenu.
type Shape struct {
	Kind    ShapeKind
	Options []Option
}

// YesNo expects a yes/no answer.
func YesNo() Shape { return Shape{Kind: ShapeYesNo} }

// Menu expects a choice between 1 and len(options).
func Menu(options []Option) Shape { return Shape{Kind: ShapeMenu, Options: options} }

// FreeText accepts any non-empty text.
func FreeText() Shape { return Shape{Kind: ShapeFreeText} }

// TokenKind classifies a parsed reply.
type TokenKind int

const (
	TokenUnrecognized TokenKind = iota
	TokenYes
	TokenNo
	TokenChoice
	TokenText
)

// Token is the canonical form of a reply. Choice is 1-based.
type Token struct {
	Kind   TokenKind
	Choice int
	Text   string
}

// Unrecognized is returned when a reply matches nothing the shape accepts.
var Unrecognized = Token{Kind: TokenUnrecognized}

var (
	yesWords = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "yup": true, "sure": true, "1": true}
	noWords  = map[string]bool{"no": true, "n": true, "nope": true, "nah": true, "2": true}
)

// Parse normalizes raw SMS text into a Token for the given shape.
func Parse(raw string, shape Shape) Token {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Unrecognized
	}
	switch shape.Kind {
	case ShapeYesNo:
		return parseYesNo(text)
	case ShapeMenu:
		return parseMenu(text, shape.Options)
	case ShapeFreeText:
		return Token{Kind: TokenText, Text: text}
	default:
		return Unrecognized
	}
}

func parseYesNo(text string) Token {
	words := normalizeWords(text)
	if len(words) == 0 {
		return Unrecognized
	}
	if strings.Join(words, " ") == "not yet" {
		return Token{Kind: TokenNo}
	}
	switch first := words[0]; {
	case yesWords[first]:
		return Token{Kind: TokenYes}
	case noWords[first]:
		return Token{Kind: TokenNo}
	}
	return Unrecognized
}

func parseMenu(text string, options []Option) Token {
	words := normalizeWords(text)
	if len(words) == 0 {
		return Unrecognized
	}
	if n, err := strconv.Atoi(words[0]); err == nil {
		if len(words) == 1 && n >= 1 && n <= len(options) {
			return Token{Kind: TokenChoice, Choice: n}
		}
		return Unrecognized
	}
	joined := " " + strings.Join(words, " ") + " "
	for i, opt := range options {
		for _, alias := range opt.Aliases {
			if matchesAlias(joined, words, alias) {
				return Token{Kind: TokenChoice, Choice: i + 1}
			}
		}
	}
	return Unrecognized
}

// matchesAlias accepts multi-word aliases as a phrase and single-word aliases as a word prefix,
// so "vandal" matches "vandalism" but "set" does not match "upset".
func matchesAlias(joined string, words []string, alias string) bool {
	if strings.Contains(alias, " ") {
		return strings.Contains(joined, " "+alias+" ")
	}
	for _, w := range words {
		if strings.HasPrefix(w, alias) {
			return true
		}
	}
	return false
}

func normalizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
