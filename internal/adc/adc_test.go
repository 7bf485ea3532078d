package adc

import (
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	ch := FlatChannel(100)
	r.Register("ct1", ch)

	got, err := r.Lookup("ct1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if v, _ := got.Read(); v != 100 {
		t.Errorf("Read = %d, want 100", v)
	}

	if _, err := r.Lookup("missing"); err == nil {
		t.Error("expected error for unknown channel")
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "ct1" {
		t.Errorf("Names = %v, want [ct1]", names)
	}
}

func TestSimChannelWaveform(t *testing.T) {
	ch := NewSimChannel(1000, 0, 4095)

	// One 50 Hz period is 200 samples at 100 us per read.
	var lo, hi uint16 = 4095, 0
	for i := 0; i < 200; i++ {
		v, err := ch.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	mid := uint16(4095 / 2)
	if hi < mid+900 || hi > mid+1100 {
		t.Errorf("peak = %d, want near %d", hi, mid+1000)
	}
	if lo > mid-900 || lo < mid-1100 {
		t.Errorf("trough = %d, want near %d", lo, mid-1000)
	}
	if ch.Reads() != 200 {
		t.Errorf("Reads = %d, want 200", ch.Reads())
	}
}

func TestSimChannelClamps(t *testing.T) {
	ch := NewSimChannel(5000, 0, 4095) // amplitude beyond full scale
	for i := 0; i < 400; i++ {
		v, err := ch.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v > 4095 {
			t.Fatalf("sample %d exceeds full scale", v)
		}
	}
}

func TestSimChannelFailEvery(t *testing.T) {
	ch := NewSimChannel(100, 0, 4095)
	ch.FailEvery = 3

	failures := 0
	for i := 0; i < 9; i++ {
		if _, err := ch.Read(); err != nil {
			failures++
		}
	}
	if failures != 3 {
		t.Errorf("failures = %d, want 3", failures)
	}
}

func TestChannelFunc(t *testing.T) {
	calls := 0
	ch := ChannelFunc(func() (uint16, error) {
		calls++
		return 42, nil
	})

	v, err := ch.Read()
	if err != nil || v != 42 {
		t.Errorf("Read = %d, %v", v, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
