package cancelreg

import "testing"

func TestRegisterTripRemove(t *testing.T) {
	r := New()
	flag := r.Register(42)
	if flag.Tripped() {
		t.Fatal("fresh flag should not be tripped")
	}

	if !r.Trip(42) {
		t.Fatal("expected Trip to find id 42")
	}
	if !flag.Tripped() {
		t.Fatal("expected the handle returned by Register to observe the trip")
	}

	r.Remove(42)
	if r.Trip(42) {
		t.Fatal("expected Trip to report false after Remove")
	}
}

func TestTripUnknownIDReturnsFalse(t *testing.T) {
	r := New()
	if r.Trip(999) {
		t.Fatal("expected Trip on unknown id to return false")
	}
}

func TestTripIsIdempotent(t *testing.T) {
	r := New()
	flag := r.Register(1)
	r.Trip(1)
	r.Trip(1)
	if !flag.Tripped() {
		t.Fatal("expected flag tripped after repeated Trip calls")
	}
}

func TestDuplicateRegisterOrphansPriorFlag(t *testing.T) {
	r := New()
	first := r.Register(7)
	second := r.Register(7)
	r.Trip(7)
	if first.Tripped() {
		t.Fatal("prior flag handle should be orphaned, not tripped")
	}
	if !second.Tripped() {
		t.Fatal("current flag handle should observe the trip")
	}
}
