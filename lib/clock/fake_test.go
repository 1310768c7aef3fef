// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if !fake.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", fake.Now(), start)
	}

	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ch := fake.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before deadline")
	default:
	}

	fake.Advance(30 * time.Second)
	select {
	case firedAt := <-ch:
		want := time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)
		if !firedAt.Equal(want) {
			t.Errorf("fired at %v, want %v", firedAt, want)
		}
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeSetBackwardPanics(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	defer func() {
		if recover() == nil {
			t.Fatal("Set backward did not panic")
		}
	}()
	fake.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
}
