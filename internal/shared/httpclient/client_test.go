package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/planpage/server/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New(config.ClientConfig{
		RequestTimeout:  5 * time.Second,
		DialTimeout:     time.Second,
		MaxIdleConns:    4,
		IdleConnTimeout: time.Minute,
	})

	assert.Equal(t, 5*time.Second, c.Timeout)
	transport, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 4, transport.MaxIdleConns)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)
	assert.Equal(t, time.Minute, transport.IdleConnTimeout)
	assert.True(t, transport.ForceAttemptHTTP2)
}
