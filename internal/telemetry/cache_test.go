package telemetry

import (
	"reflect"
	"sync"
	"testing"

	"robot-gateway/internal/types"
)

func sampleSnapshot() types.TelemetrySnapshot {
	actuators := make([]types.ActuatorState, 12)
	for i := range actuators {
		actuators[i] = types.ActuatorState{Effort: 0.1, Temperature: 40.0}
	}
	return types.TelemetrySnapshot{
		BodyTemperature: 40.0,
		Voltage:         12.0,
		ActuatorStates:  actuators,
	}
}

func TestGetBeforeSetReturnsDefault(t *testing.T) {
	c := NewCache()
	if got := c.Get(false); !reflect.DeepEqual(got, types.DefaultSnapshot()) {
		t.Fatalf("expected default snapshot, got %+v", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := NewCache()
	s := sampleSnapshot()
	s.Voltage = 11.4
	s.ActuatorStates[3].Effort = -2.5

	c.Set(s)
	if got := c.Get(false); !reflect.DeepEqual(got, s) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", s, got)
	}
}

func TestSetCopiesInput(t *testing.T) {
	c := NewCache()
	s := sampleSnapshot()
	c.Set(s)

	s.ActuatorStates[0].Effort = 42
	if got := c.Get(false); got.ActuatorStates[0].Effort == 42 {
		t.Fatal("cache shares buffer with caller after Set")
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	c := NewCache()
	c.Set(sampleSnapshot())

	got := c.Get(false)
	got.ActuatorStates[0].Temperature = -1

	if again := c.Get(false); again.ActuatorStates[0].Temperature != 40.0 {
		t.Fatal("mutating a returned snapshot changed the cache")
	}
}

func TestNoiseDoesNotMutateCanonical(t *testing.T) {
	c := NewCache(WithSeed(7))
	s := sampleSnapshot()
	c.Set(s)

	first := c.Get(true)
	second := c.Get(true)

	if reflect.DeepEqual(first, second) {
		t.Fatal("expected noisy reads to differ")
	}
	if reflect.DeepEqual(first, s) {
		t.Fatal("expected noisy read to differ from canonical value")
	}
	if &first.ActuatorStates[0] == &second.ActuatorStates[0] {
		t.Fatal("noisy reads share a buffer")
	}
	if got := c.Get(false); !reflect.DeepEqual(got, s) {
		t.Fatalf("canonical value changed by noisy reads: %+v", got)
	}
}

func TestNoiseBounds(t *testing.T) {
	c := NewCache(WithSeed(1))
	s := sampleSnapshot()
	c.Set(s)

	for i := 0; i < 100; i++ {
		got := c.Get(true)
		if d := got.BodyTemperature - s.BodyTemperature; d < -1e-9 || d > 1+1e-9 {
			t.Fatalf("body temperature offset out of range: %v", d)
		}
		if d := got.Voltage - s.Voltage; d < -1e-9 || d > 1+1e-9 {
			t.Fatalf("voltage offset out of range: %v", d)
		}
		for j, a := range got.ActuatorStates {
			n := a.Effort - s.ActuatorStates[j].Effort
			if n < -0.5-1e-9 || n > 0.5+1e-9 {
				t.Fatalf("effort offset out of range: %v", n)
			}
			dt := a.Temperature - s.ActuatorStates[j].Temperature
			if diff := dt - n*10; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("temperature offset %v is not 10x effort offset %v", dt, n)
			}
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := sampleSnapshot()
				s.Voltage = v
				c.Set(s)
			}
		}(float64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.Get(j%2 == 0)
			}
		}()
	}
	wg.Wait()

	if got := c.Get(false); len(got.ActuatorStates) != 12 {
		t.Fatalf("unexpected actuator count after concurrent writes: %d", len(got.ActuatorStates))
	}
}
