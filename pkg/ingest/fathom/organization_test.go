package fathom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOrganization(t *testing.T) {
	tests := []struct {
		name     string
		speaker  string
		hint     string
		expected Organization
	}{
		{"email wins over hint", "alice@chalk.ai", "Acme", IsEmail{Domain: "chalk.ai"}},
		{"email without hint", "bob@mail.globex.com", "", IsEmail{Domain: "mail.globex.com"}},
		{"name with hint", "Alice", " Acme ", NotEmail{Fallback: ptr("Acme")}},
		{"name without hint", "Alice", "", NotEmail{}},
		{"blank hint", "Alice", "   ", NotEmail{}},
		{"display name form is not bare email", "Alice <alice@chalk.ai>", "Acme", NotEmail{Fallback: ptr("Acme")}},
		{"dotless domain", "root@localhost", "", NotEmail{}},
		{"missing local part", "@chalk.ai", "", NotEmail{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyOrganization(tc.speaker, tc.hint))
		})
	}
}

func TestOrganization_Value(t *testing.T) {
	v := IsEmail{Domain: "chalk.ai"}.Value()
	require.NotNil(t, v)
	assert.Equal(t, "chalk.ai", *v)

	assert.Nil(t, NotEmail{}.Value())
	assert.Equal(t, "Acme", *NotEmail{Fallback: ptr("Acme")}.Value())
}
