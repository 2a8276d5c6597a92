package config

import (
	"net/http"
	"sync/atomic"
)

type mockRoundTripper struct {
	calls   atomic.Int32
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.calls.Add(1)
	return m.handler(req)
}

// envMap adapts a map to the lookup signature applyEnv expects.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}
