package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type voltageBelow float64

func (v voltageBelow) Match(d *Datum) bool {
	val, ok := d.Channel("Battery Voltage")
	return ok && val.Value < float64(v)
}

func TestRegistry_PutDrainsEveryTrigger(t *testing.T) {
	var updated, low atomic.Int32

	t1 := NewTrigger("data-updated", Always)
	t1.Append(NewHandler("feed", func(*Datum) error { updated.Add(1); return nil }))
	t2 := NewTrigger("battery-low", voltageBelow(12))
	t2.Append(NewHandler("shutdown", func(*Datum) error { low.Add(1); return nil }))

	r := NewRegistry()
	r.Append(t1)
	r.Append(t2)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	for _, v := range []float64{12.4, 11.8, 12.1} {
		if err := r.Put(testDatum(v)); err != nil {
			t.Fatalf("Put(%v) error = %v", v, err)
		}
	}

	// Put is a barrier: counts are final as soon as it returns
	if updated.Load() != 3 {
		t.Errorf("expected 3 updates, got %d", updated.Load())
	}
	if low.Load() != 1 {
		t.Errorf("expected 1 low-battery action, got %d", low.Load())
	}

	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Join(2 * time.Second); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	for _, tr := range r.Triggers() {
		if tr.State() != StateTerminated {
			t.Errorf("%s: expected terminated, got %s", tr.Name(), tr.State())
		}
		for _, c := range tr.Children() {
			if c.(*Listener).State() != StateTerminated {
				t.Errorf("%s: expected terminated", c.Name())
			}
		}
	}
}

func TestRegistry_EdgeTriggerFiresPerStep(t *testing.T) {
	var fired atomic.Int32
	det := NewEdgeDetector(EdgeRising, 25.0)
	tr := NewTrigger("battery-full", ConditionFunc(func(d *Datum) bool {
		v, ok := d.Channel("Battery Voltage")
		if !ok {
			return false
		}
		_, match := det.Observe(v.Value)
		return match
	}))
	tr.Append(NewHandler("notify", func(*Datum) error { fired.Add(1); return nil }))

	r := NewRegistry()
	r.Append(tr)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer stopAndJoin(t, r)

	for _, v := range []float64{24.9, 25.1, 25.2} {
		if err := r.Put(testDatum(v)); err != nil {
			t.Fatal(err)
		}
	}
	if fired.Load() != 2 {
		t.Errorf("expected 2 firings, got %d", fired.Load())
	}
}

func TestRegistry_PutNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Put(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistry_AppendAfterStart(t *testing.T) {
	r := NewRegistry()
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(NewTrigger("late", Always)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRegistry_PutContextBoundsWedgedTrigger(t *testing.T) {
	tr := NewTrigger("t", Always)
	tr.Append(NewHandler("bad", func(*Datum) error { return errors.New("boom") }))
	r := NewRegistry()
	r.Append(tr)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := r.PutContext(ctx, testDatum(1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	r.Stop()
	if err := r.Join(50 * time.Millisecond); !errors.Is(err, ErrJoinTimeout) {
		t.Errorf("expected ErrJoinTimeout for wedged trigger, got %v", err)
	}
}

func TestRegistry_StartFailureStopsStartedTriggers(t *testing.T) {
	shared := NewHandler("shared", func(*Datum) error { return nil })
	a := NewTrigger("a", Always)
	a.Append(shared)
	b := NewTrigger("b", Always)
	b.Append(shared)

	r := NewRegistry()
	r.Append(a)
	r.Append(b)
	if err := r.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if a.State() != StateTerminated {
		t.Errorf("trigger a left in state %s", a.State())
	}
	if shared.State() != StateTerminated {
		t.Errorf("handler left in state %s", shared.State())
	}
}
