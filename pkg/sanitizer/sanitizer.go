package sanitizer

import (
	"net/mail"
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reControl = regexp.MustCompile(`[\p{Cc}\p{Cf}]+`)

func stripControl(s string) string {
	return reControl.ReplaceAllString(s, " ")
}

// SanitizeText is used for names, manufacturers and descriptions.
func SanitizeText(input string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
	}
	return p.Apply(input)
}

// SanitizeEmail lowercases and trims an address, returning "" when it does
// not parse as a bare address.
func SanitizeEmail(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ""
	}
	return s
}

// SanitizeStatus normalizes spacing so "In  Progress" matches the
// enumerated value.
func SanitizeStatus(input string) string {
	return TrimAndNormalize(stripControl(input))
}
