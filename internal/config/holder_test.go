package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHolder(t *testing.T) {
	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/driveindex/config.toml")

	require.NotNil(t, h)
	assert.Same(t, cfg, h.Config())
	assert.Equal(t, "/etc/driveindex/config.toml", h.Path())
}

func TestHolder_SwapReturnsPrevious(t *testing.T) {
	cfg1 := DefaultConfig()
	h := NewHolder(cfg1, "/tmp/config.toml")

	cfg2 := DefaultConfig()
	cfg2.Index.PollInterval = "10m"

	assert.Same(t, cfg1, h.Swap(cfg2))
	assert.Same(t, cfg2, h.Config())
}

func TestHolder_ConcurrentReadSwap(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.NotNil(t, h.Config())
			}
		}()
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.NotNil(t, h.Swap(DefaultConfig()))
			}
		}()
	}

	wg.Wait()
}

func TestDiff(t *testing.T) {
	prev := DefaultConfig()

	assert.Empty(t, Diff(prev, DefaultConfig()).Live)
	assert.Empty(t, Diff(prev, DefaultConfig()).Restart)

	next := DefaultConfig()
	next.Index.Workers = 3
	next.Index.Recursive = true
	next.Index.MaxConnections = 2
	next.Remote.BaseURL = "https://drive.example.com/api"
	next.Status.ListenAddr = "127.0.0.1:9090"

	d := Diff(prev, next)
	assert.Equal(t, []string{
		"index.workers: 8 -> 3",
		"index.recursive: false -> true",
	}, d.Live)
	assert.Equal(t, []string{"index.max_connections", "remote", "status"}, d.Restart)
}
