package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
)

// DefaultMinLength is the minimum password length in runes.
const DefaultMinLength = 12

// DefaultSymbols is the symbol class accepted by the default policy.
const DefaultSymbols = "!@#$%^&*()-_=+[]{}|;:'\",.<>/?`~\\"

var (
	// ErrPolicy matches every policy violation.
	ErrPolicy = errors.New("password policy violation")
	// ErrTooShort is reported when the password has fewer than MinLength runes.
	ErrTooShort = errors.New("password too short")
	// ErrMissingCharacterClass is reported when a required character class is absent.
	ErrMissingCharacterClass = errors.New("password missing character class")
	// ErrContainsIdentifier is reported when the password contains the username or email.
	ErrContainsIdentifier = errors.New("password contains identifier")
)

// CharacterClass names one of the required character classes.
type CharacterClass string

const (
	ClassUpper  CharacterClass = "uppercase"
	ClassLower  CharacterClass = "lowercase"
	ClassDigit  CharacterClass = "digit"
	ClassSymbol CharacterClass = "symbol"
)

// Violation is one failed rule.
type Violation struct {
	Kind    error
	Missing []CharacterClass
}

func (v Violation) Error() string {
	if len(v.Missing) == 0 {
		return v.Kind.Error()
	}
	return v.Kind.Error() + ": " + strings.Join(lo.Map(v.Missing, func(c CharacterClass, _ int) string {
		return string(c)
	}), ", ")
}

func (v Violation) Unwrap() error { return v.Kind }

// PolicyError aggregates every violated rule, in rule order.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	msgs := lo.Map(e.Violations, func(v Violation, _ int) string { return v.Error() })
	return ErrPolicy.Error() + ": " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrPolicy and each violation kind to errors.Is.
func (e *PolicyError) Unwrap() []error {
	out := make([]error, 0, len(e.Violations)+1)
	out = append(out, ErrPolicy)
	for _, v := range e.Violations {
		out = append(out, v)
	}
	return out
}

// Policy is the password complexity rule set. The zero value uses the defaults.
type Policy struct {
	MinLength int
	Symbols   string
}

// DefaultPolicy returns the 12-rune, four-class policy.
func DefaultPolicy() Policy {
	return Policy{MinLength: DefaultMinLength, Symbols: DefaultSymbols}
}

// Check evaluates every rule and returns nil or a *PolicyError listing all
// violations. username and email are matched case-insensitively as
// substrings; empty identifiers are ignored.
func (p Policy) Check(password, username, email string) error {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	symbols := p.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}

	var violations []Violation

	if utf8.RuneCountInString(password) < minLength {
		violations = append(violations, Violation{Kind: ErrTooShort})
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(symbols, r):
			hasSymbol = true
		}
	}
	missing := lo.Compact([]CharacterClass{
		lo.Ternary(hasUpper, CharacterClass(""), ClassUpper),
		lo.Ternary(hasLower, CharacterClass(""), ClassLower),
		lo.Ternary(hasDigit, CharacterClass(""), ClassDigit),
		lo.Ternary(hasSymbol, CharacterClass(""), ClassSymbol),
	})
	if len(missing) > 0 {
		violations = append(violations, Violation{Kind: ErrMissingCharacterClass, Missing: missing})
	}

	lowered := strings.ToLower(password)
	for _, ident := range []string{username, email} {
		ident = strings.ToLower(strings.TrimSpace(ident))
		if ident != "" && strings.Contains(lowered, ident) {
			violations = append(violations, Violation{Kind: ErrContainsIdentifier})
			break
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &PolicyError{Violations: violations}
}

// Check runs the default policy.
func Check(password, username, email string) error {
	return DefaultPolicy().Check(password, username, email)
}
