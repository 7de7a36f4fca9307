package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain value untouched", "report", "report"},
		{"percent escaped", "100%", `100\%`},
		{"underscore escaped", "my_file", `my\_file`},
		{"backslash escaped first", `back\slash`, `back\\slash`},
		{"all metacharacters", `a%b_c\d`, `a\%b\_c\\d`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.input))
		})
	}
}
