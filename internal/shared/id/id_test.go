package id

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewUUIDFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := NewUUID()
		if !uuidPattern.MatchString(u) {
			t.Fatalf("UUID %q does not match v4 pattern", u)
		}
		if !IsValidUUID(u) {
			t.Fatalf("UUID %q should validate", u)
		}
	}
}

func TestNewUUIDUnique(t *testing.T) {
	const samples = 10000

	seen := make(map[string]bool, samples)
	for i := 0; i < samples; i++ {
		u := NewUUID()
		if seen[u] {
			t.Fatalf("Duplicate UUID after %d samples: %s", i, u)
		}
		seen[u] = true
	}
}

func TestUUIDVariantNibble(t *testing.T) {
	gen := NewUUIDGeneratorWithSource(rand.NewPCG(1, 2))

	variants := make(map[byte]bool)
	for i := 0; i < 500; i++ {
		variants[gen.Generate()[19]] = true
	}

	for v := range variants {
		if !strings.ContainsRune("89ab", rune(v)) {
			t.Errorf("Variant nibble %q outside {8,9,a,b}", v)
		}
	}
	if len(variants) != 4 {
		t.Errorf("Expected all 4 variant nibbles over 500 samples, got %d", len(variants))
	}
}

func TestUUIDDeterministicSource(t *testing.T) {
	a := NewUUIDGeneratorWithSource(rand.NewPCG(42, 42))
	b := NewUUIDGeneratorWithSource(rand.NewPCG(42, 42))

	for i := 0; i < 10; i++ {
		if ua, ub := a.Generate(), b.Generate(); ua != ub {
			t.Fatalf("Same seed should give same UUIDs: %s != %s", ua, ub)
		}
	}
}

func TestIsValidUUID(t *testing.T) {
	invalid := []string{
		"",
		"invalid",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // v1
		"123e4567-e89b-42d3-c456-426614174000", // bad variant
		"123E4567-E89B-42D3-A456-426614174000", // uppercase
		"{123e4567-e89b-42d3-a456-426614174000}",
	}

	for _, s := range invalid {
		if IsValidUUID(s) {
			t.Errorf("UUID should be invalid: %s", s)
		}
	}

	if !IsValidUUID("123e4567-e89b-42d3-a456-426614174000") {
		t.Error("Canonical v4 UUID should be valid")
	}
}

func TestConcurrentUUIDGeneration(t *testing.T) {
	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- NewUUID()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for u := range idChan {
		if seen[u] {
			t.Errorf("Duplicate UUID in concurrent generation: %s", u)
		}
		seen[u] = true
	}
}

func TestNewExecutionID(t *testing.T) {
	before := time.Now()
	execID := NewExecutionID()
	after := time.Now()

	if !strings.HasPrefix(execID.String(), "exec_") {
		t.Fatalf("ExecutionID should start with 'exec_', got: %s", execID)
	}

	ts, err := Timestamp(execID.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %d ms outside [%d, %d]", ts.UnixMilli(), before.UnixMilli(), after.UnixMilli())
	}
}

func TestTimestampInvalid(t *testing.T) {
	if _, err := Timestamp("exec_notaulid"); err == nil {
		t.Error("Expected error for invalid ULID")
	}
}

func TestExecutionIDsSortInCreationOrder(t *testing.T) {
	prev := NewExecutionID()
	for i := 0; i < 1000; i++ {
		next := NewExecutionID()
		if next <= prev {
			t.Fatalf("ExecutionID %s did not sort after %s", next, prev)
		}
		prev = next
	}
}

func BenchmarkNewUUID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewUUID()
	}
}

func BenchmarkNewExecutionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewExecutionID()
	}
}
