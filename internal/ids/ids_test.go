package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNew_Parses(t *testing.T) {
	id := New()
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("ulid.Parse(%q): %v", id, err)
	}
}

func TestNew_UniqueUnderConcurrency(t *testing.T) {
	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, New())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*perWorker {
		t.Fatalf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
}
