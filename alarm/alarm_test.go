package alarm

import (
	"sync"
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	fired := make(chan Token, 1)
	s := New(func(tok Token) { fired <- tok })
	defer s.Stop()

	s.Schedule("set-0", 10*time.Millisecond)

	select {
	case tok := <-fired:
		if tok != "set-0" {
			t.Fatalf("fired token = %q, want set-0", tok)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestScheduleReplacesPending(t *testing.T) {
	var mu sync.Mutex
	var fires []Token
	s := New(func(tok Token) {
		mu.Lock()
		fires = append(fires, tok)
		mu.Unlock()
	})
	defer s.Stop()

	s.Schedule("a", 5*time.Millisecond)
	s.Schedule("a", 50*time.Millisecond) // supersedes the first scheduling

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fires) != 1 {
		t.Fatalf("expected exactly one fire, got %d (%v)", len(fires), fires)
	}
}

func TestCancelIsIdempotentAndSuppressesFire(t *testing.T) {
	fired := make(chan Token, 1)
	s := New(func(tok Token) { fired <- tok })
	defer s.Stop()

	s.Schedule("b", 20*time.Millisecond)
	s.Cancel("b")
	s.Cancel("b") // idempotent, must not panic

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(80 * time.Millisecond):
		// expected: no fire
	}
}

func TestPeriodicReschedules(t *testing.T) {
	fired := make(chan Token, 8)
	s := New(func(tok Token) { fired <- tok })
	defer s.Stop()

	s.SchedulePeriodic("rot", 15*time.Millisecond)
	defer s.Cancel("rot")

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("periodic timer only fired %d times", i)
		}
	}
}
