package address

import (
	"strconv"
	"testing"
)

func TestSequentialFactoryIsMonotonic(t *testing.T) {
	f := NewSequential()
	a1 := f.New()
	a2 := f.New()

	if a1.Equals(a2) {
		t.Fatalf("expected distinct addresses, got %s == %s", a1, a2)
	}
	if a1.String() == "" || a2.String() == "" {
		t.Fatalf("address string projection must not be empty")
	}
	n1, err1 := strconv.ParseInt(a1.String(), 10, 64)
	n2, err2 := strconv.ParseInt(a2.String(), 10, 64)
	if err1 != nil || err2 != nil || n2 <= n1 {
		t.Fatalf("expected increasing integer addresses, got %s then %s", a1, a2)
	}
}

func TestTimeOrderedFactoryProducesUniqueAddresses(t *testing.T) {
	f := NewTimeOrdered()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a := f.New()
		if seen[a.String()] {
			t.Fatalf("duplicate address generated: %s", a)
		}
		seen[a.String()] = true
	}
}

func TestAddressEqualsIsByValue(t *testing.T) {
	f := NewSequential()
	a1 := f.New()

	a2 := stringAddress(a1.String())
	if !a1.Equals(a2) {
		t.Fatalf("equal string projections must compare equal")
	}
}

func TestAddressHashIsStable(t *testing.T) {
	f := NewTimeOrdered()
	a := f.New()

	if a.Hash() != a.Hash() {
		t.Fatalf("hash must be stable across calls")
	}
}
