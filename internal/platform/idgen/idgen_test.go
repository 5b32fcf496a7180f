package idgen

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDNewIsValidAndUnique(t *testing.T) {
	gen := UUID{}
	a := gen.New()
	b := gen.New()

	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("New() returned invalid UUID %q: %v", a, err)
	}
}

func TestDefaultIsUUID(t *testing.T) {
	if _, ok := Default.(UUID); !ok {
		t.Fatalf("Default generator should be UUID{}")
	}
}
