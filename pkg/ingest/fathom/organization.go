package fathom

import (
	"net/mail"
	"strings"
)

// Organization is the outcome of classifying a resolved speaker. It is either
// IsEmail or NotEmail.
type Organization interface {
	// Value returns the organization to record, or nil.
	Value() *string
	isOrganization()
}

// IsEmail is returned when the speaker resolved to an email address; the
// organization is the address's domain.
type IsEmail struct {
	Domain string
}

func (o IsEmail) Value() *string {
	d := o.Domain
	return &d
}

func (IsEmail) isOrganization() {}

// NotEmail is returned when the speaker is not an email address; the
// organization falls back to the parenthetical hint from the header line.
type NotEmail struct {
	Fallback *string
}

func (o NotEmail) Value() *string {
	return o.Fallback
}

func (NotEmail) isOrganization() {}

// ClassifyOrganization derives the organization for a speaker. An email's
// domain wins over hint; otherwise the trimmed hint is used when non-empty.
func ClassifyOrganization(speaker, hint string) Organization {
	if domain, ok := emailDomain(speaker); ok {
		return IsEmail{Domain: domain}
	}
	if h := strings.TrimSpace(hint); h != "" {
		return NotEmail{Fallback: &h}
	}
	return NotEmail{}
}

// emailDomain reports the domain of s when s is a bare email address
// ("user@example.com", no display name or angle brackets).
func emailDomain(s string) (string, bool) {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	return domain, true
}
