package redis

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestClientOptions(t *testing.T) {
	opts, err := ClientConfig{Addr: "localhost:6379", DB: 2, PoolSize: 5, TLSEnabled: true}.options()
	assert.NoError(t, err)
	check.Equal(t, "localhost:6379", opts.Addr)
	check.Equal(t, 2, opts.DB)
	check.Equal(t, 5, opts.PoolSize)
	check.NotNil(t, opts.TLSConfig)

	opts, err = ClientConfig{Addr: "redis://:pw@cache.internal:6380/3", DialTimeout: time.Second}.options()
	assert.NoError(t, err)
	check.Equal(t, "cache.internal:6380", opts.Addr)
	check.Equal(t, "pw", opts.Password)
	check.Equal(t, 3, opts.DB)
	check.Equal(t, time.Second, opts.DialTimeout)

	_, err = ClientConfig{Addr: "redis://host:6379/notadb"}.options()
	check.Error(t, err)
}
