package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	id := New()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("New() = %q is not a UUID: %v", id, err)
	}
	if New() == id {
		t.Error("two calls returned the same id")
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("att")
	if !strings.HasPrefix(id, "att_") {
		t.Fatalf("WithPrefix = %q, want att_ prefix", id)
	}
	if !IsValid("att", id) {
		t.Errorf("IsValid(%q) = false", id)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"att_0123456789abcdef0123456789abcdef", true},
		{"att_0123456789ABCDEF0123456789abcdef", false},
		{"att_0123", false},
		{"xyz_0123456789abcdef0123456789abcdef", false},
		{"att0123456789abcdef0123456789abcdef", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid("att", tt.id); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
