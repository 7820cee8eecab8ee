package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.org":  "Jane Doe",
		"jane_doe@example.org":  "Jane Doe",
		"jane-doe@example.org":  "Jane Doe",
		"jane+tag@example.org":  "Jane Tag",
		"single@example.org":    "Single",
		"a.b.c@example.org":     "A B C",
		"no-at-sign":            "No At Sign",
		"...@example.org":       "Member",
		"@example.org":          "Member",
	}
	for addr, want := range cases {
		assert.Equal(t, want, DisplayName(addr), "addr %q", addr)
	}
}
