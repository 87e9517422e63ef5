package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSetsDeadlines(t *testing.T) {
	srv := New(":0", http.NewServeMux())

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, headerTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, readTimeout, srv.ReadTimeout)
	assert.Equal(t, writeTimeout, srv.WriteTimeout)
	assert.Equal(t, idleTimeout, srv.IdleTimeout)
}
