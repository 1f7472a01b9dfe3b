package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy describes the complexity rules new passwords must meet.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumbers   bool
	RequireSymbols   bool
}

// DefaultPasswordPolicy matches the platform's shipped security settings.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:        8,
	RequireUppercase: true,
	RequireLowercase: true,
	RequireNumbers:   true,
	RequireSymbols:   true,
}

var ErrWeakPassword = errors.New("password does not meet requirements")

// Validate returns an error wrapping ErrWeakPassword that lists every unmet rule.
func (p PasswordPolicy) Validate(password string) error {
	var problems []string

	if len([]rune(password)) < p.MinLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", p.MinLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUppercase && !upper {
		problems = append(problems, "an uppercase letter")
	}
	if p.RequireLowercase && !lower {
		problems = append(problems, "a lowercase letter")
	}
	if p.RequireNumbers && !digit {
		problems = append(problems, "a number")
	}
	if p.RequireSymbols && !symbol {
		problems = append(problems, "a symbol")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: must contain %s", ErrWeakPassword, strings.Join(problems, ", "))
	}
	return nil
}
