package uuidv7

import (
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("version=%d", u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		t.Fatalf("variant=%v", u.Variant())
	}
}

func TestNewString(t *testing.T) {
	got, err := NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestNewStringOrdered(t *testing.T) {
	a, err := NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	b, err := NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// Same-process v7 ids must sort in issue order.
	if !(a < b) {
		t.Fatalf("ids out of order: %s then %s", a, b)
	}
}
