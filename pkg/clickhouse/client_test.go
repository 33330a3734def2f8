package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	cfg := &ClientConfig{
		Host: "ch", Port: 9000, Database: "signals", User: "app", Password: "p@ss",
		DialTimeout: 5 * time.Second, MaxOpenConns: 10, AsyncInsert: true,
	}
	opts := options(cfg)
	assert.Equal(t, []string{"ch:9000"}, opts.Addr)
	assert.Equal(t, "signals", opts.Auth.Database)
	assert.Equal(t, "app", opts.Auth.Username)
	assert.Equal(t, 10, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.Settings["async_insert"])

	cfg.AsyncInsert = false
	assert.Empty(t, options(cfg).Settings)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
