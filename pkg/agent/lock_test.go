package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	a := model.ThreadKey{Namespace: "005", ThreadID: "terminal"}
	b := model.ThreadKey{Namespace: "006", ThreadID: "terminal"}

	unlockA := k.Lock(a)

	// another key is not blocked
	done := make(chan struct{})
	go func() {
		k.Lock(b)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		k.Lock(a)()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("same key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	wg.Wait()
	gt.Equal(t, len(k.entries), 0)
}
