package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLKeepsEncodedHost(t *testing.T) {
	c := New("http://ci.example.com/test%20ops", http.DefaultClient, "default")

	assert.Equal(t, "http://ci.example.com/test%20ops/runs/run-1/results", c.url("/runs/%s/results", "run-1"))
}
