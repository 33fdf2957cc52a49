package api

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two clients hammering append concurrently: every item must land exactly
// once, with the interleaving left unspecified.
func TestConcurrentAppends(t *testing.T) {
	s, reg := newServerUnderTest(t)

	const perClient = 200
	var wg sync.WaitGroup
	for client := 0; client < 2; client++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				item := fmt.Sprintf("/m/client%d-%04d.mp3", client, i)
				_, err := reg.Dispatch("append", []any{items(item)})
				assert.NoError(t, err)
			}
		}(client)
	}
	wg.Wait()

	got := queue(s)
	require.Len(t, got, 2*perClient)
	seen := make(map[string]bool, len(got))
	for _, item := range got {
		seen[item] = true
	}
	assert.Len(t, seen, 2*perClient, "every appended item is present exactly once")

	// Each client's own stream keeps its order.
	prev := map[string]string{}
	for _, item := range got {
		client := item[:10]
		if last, ok := prev[client]; ok {
			assert.Less(t, last, item)
		}
		prev[client] = item
	}
}
