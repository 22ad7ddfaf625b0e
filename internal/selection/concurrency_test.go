// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Concurrent access tests: the store is shared between the UI goroutine and
// the send path, which snapshots and clears it mid-stream.
package selection

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_ConcurrentAddAndSnapshot(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Add(fmt.Sprintf("file-%d.ts", n%5), fmt.Sprintf("excerpt %d", n))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.Len()
		}()
	}
	wg.Wait()

	require.Equal(t, 50, s.Len())
}

func TestStore_ConcurrentClear(t *testing.T) {
	s := NewStore()
	for i := 0; i < 20; i++ {
		s.Add("a.ts", fmt.Sprintf("excerpt %d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Clear()
		}()
		go func() {
			defer wg.Done()
			s.Add("b.ts", "x")
		}()
	}
	wg.Wait()

	// Snapshot must stay internally consistent: no path with zero excerpts.
	snap := s.Snapshot()
	for path, excerpts := range snap {
		require.NotEmpty(t, excerpts, "path %s has no excerpts", path)
	}
}
