package utils

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(3)
	assert.Equal(t, 3, pool.Size())

	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)
	wg.Add(10)
	pool.Setup(&tb, func(t *tomb.Tomb, task any) error {
		defer wg.Done()
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, task.(int))
		return nil
	})
	for i := 0; i < 10; i++ {
		pool.AddTask(i)
	}
	wg.Wait()

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestWorkerPool_FailureKillsTomb(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(2)
	boom := errors.New("boom")

	pool.Setup(&tb, func(t *tomb.Tomb, task any) error {
		return boom
	})
	pool.AddTask(struct{}{})

	select {
	case <-tb.Dead():
	case <-time.After(time.Second):
		t.Fatal("pool did not die")
	}
	assert.ErrorIs(t, tb.Err(), boom)
}

func TestSetupLogger_FileOutput(t *testing.T) {
	path := t.TempDir() + "/skoll.log"
	logger := SetupLogger(LogConfig{Level: "debug", Format: "json", OutputFile: path})
	logger.Info().Str("k", "v").Msg("hello")
	assert.FileExists(t, path)
}
