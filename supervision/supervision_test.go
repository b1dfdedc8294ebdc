package supervision

import (
	"errors"
	"testing"
	"time"
)

func TestIntensityAllowsExactlyKWithinPeriod(t *testing.T) {
	sup := NewStrategy(2, time.Minute, One, func(error) Directive { return Restart })

	d1 := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")})
	d2 := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")})
	d3 := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")})

	if d1 != Restart || d2 != Restart {
		t.Fatalf("expected first two restarts allowed, got %v %v", d1, d2)
	}
	if d3 != Escalate {
		t.Fatalf("expected third restart within window to escalate, got %v", d3)
	}
}

func TestUnlimitedIntensityNeverEscalates(t *testing.T) {
	sup := NewStrategy(Unlimited, time.Millisecond, One, func(error) Directive { return Restart })
	for i := 0; i < 50; i++ {
		if d := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")}); d != Restart {
			t.Fatalf("expected unlimited intensity to always restart, got %v at iteration %d", d, i)
		}
	}
}

func TestNonRestartDirectiveIsNotThrottled(t *testing.T) {
	sup := NewStrategy(0, time.Minute, One, func(error) Directive { return Resume })
	for i := 0; i < 5; i++ {
		if d := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")}); d != Resume {
			t.Fatalf("expected Resume to pass through untouched, got %v", d)
		}
	}
}

func TestIntensityIsPerSupervisedAddress(t *testing.T) {
	sup := NewStrategy(1, time.Minute, One, func(error) Directive { return Restart })

	if d := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")}); d != Restart {
		t.Fatalf("expected a's first restart allowed, got %v", d)
	}
	if d := sup.Supervise(Supervised{Address: "b", Error: errors.New("x")}); d != Restart {
		t.Fatalf("expected b's first restart allowed independently of a, got %v", d)
	}
	if d := sup.Supervise(Supervised{Address: "a", Error: errors.New("x")}); d != Escalate {
		t.Fatalf("expected a's second restart to escalate, got %v", d)
	}
}

func TestAlwaysBuildsFixedDirectiveSupervisor(t *testing.T) {
	stopper := Always(Stop, 0, 0, One)
	if d := stopper.Supervise(Supervised{Address: "a", Error: errors.New("x")}); d != Stop {
		t.Fatalf("expected fixed Stop directive, got %v", d)
	}
	if stopper.IntensityStrategy().Scope != One {
		t.Fatalf("expected One scope")
	}
}
