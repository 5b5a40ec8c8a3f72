package csp

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Add(Violation{BlockedURI: fmt.Sprintf("https://evil.example/%d", i)})
	}

	assert.Equal(t, 3, s.Len())
	got := s.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "https://evil.example/5", got[0].BlockedURI)
	assert.Equal(t, "https://evil.example/4", got[1].BlockedURI)
	assert.Equal(t, "https://evil.example/3", got[2].BlockedURI)
}

func TestStoreRecentLimit(t *testing.T) {
	s := NewStore(10)
	s.Add(Violation{BlockedURI: "a"})
	s.Add(Violation{BlockedURI: "b"})

	got := s.Recent(1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].BlockedURI)
	assert.Len(t, s.Recent(50), 2)
}

func TestStoreDefaults(t *testing.T) {
	s := NewStore(0)
	assert.Equal(t, DefaultCapacity, s.Cap())
	assert.Empty(t, s.Recent(5))
}

func TestStoreConcurrentAdds(t *testing.T) {
	s := NewStore(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Add(Violation{ViolatedDirective: "script-src"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
