package naming

import (
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"demo", true},
		{"box-1234", true},
		{"a.b_c-d", true},
		{"9lives", true},
		{"", false},
		{"-leading", false},
		{".hidden", false},
		{"../etc", false},
		{"with/slash", false},
		{"with space", false},
		{"semi;colon", false},
		{strings.Repeat("a", MaxLength), true},
		{strings.Repeat("a", MaxLength+1), false},
	}
	for _, tt := range tests {
		if got := Valid(tt.name); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name := Generate()
		if !Valid(name) {
			t.Fatalf("generated name %q is not valid", name)
		}
		if !strings.HasPrefix(name, GeneratedPrefix) {
			t.Fatalf("generated name %q lacks prefix %q", name, GeneratedPrefix)
		}
		if seen[name] {
			t.Fatalf("duplicate generated name %q", name)
		}
		seen[name] = true
	}
}
