package httperr

import "testing"

func TestIsBadRequest(t *testing.T) {
	if IsBadRequest(nil) {
		t.Fatalf("expected false for nil")
	}
	if IsBadRequest(NewBadRequest("bad")) != true {
		t.Fatalf("expected true for BadRequestError")
	}
	if IsBadRequest(assertErr("other")) {
		t.Fatalf("expected false for non-BadRequestError")
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Fatalf("expected false for nil")
	}
	if !IsNotFound(NewNotFound("missing")) {
		t.Fatalf("expected true for NotFoundError")
	}
	if IsNotFound(NewBadRequest("bad")) {
		t.Fatalf("expected false for BadRequestError")
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(NewConflict("state")) {
		t.Fatalf("expected true for ConflictError")
	}
	if IsConflict(assertErr("other")) {
		t.Fatalf("expected false for non-ConflictError")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(NewUnavailable("down")) {
		t.Fatalf("expected true for UnavailableError")
	}
	if IsUnavailable(NewNotFound("missing")) {
		t.Fatalf("expected false for NotFoundError")
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
