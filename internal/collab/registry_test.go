package collab

import (
	"sync"
	"testing"
)

func TestRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", 1, 7)

	binding, ok := r.Unregister("sess-1")
	if !ok {
		t.Fatal("expected binding for registered session")
	}
	if binding.UserID != 1 || binding.DocumentID != 7 {
		t.Errorf("unexpected binding: %+v", binding)
	}
}

func TestUnregisterTwiceReportsAbsent(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", 1, 7)

	if _, ok := r.Unregister("sess-1"); !ok {
		t.Fatal("first unregister should find the session")
	}
	if _, ok := r.Unregister("sess-1"); ok {
		t.Error("second unregister must report absent")
	}
}

func TestRegisterReplacesBinding(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", 1, 7)
	r.Register("sess-1", 1, 9)

	binding, ok := r.Lookup("sess-1")
	if !ok {
		t.Fatal("expected binding")
	}
	if binding.DocumentID != 9 {
		t.Errorf("session should map to the latest document, got %d", binding.DocumentID)
	}
}

func TestConcurrentUnregisterSingleWinner(t *testing.T) {
	r := NewRegistry()
	r.Register("sess-1", 1, 7)

	var wg sync.WaitGroup
	wins := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Unregister("sess-1"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("exactly one unregister should win, got %d", count)
	}
}
