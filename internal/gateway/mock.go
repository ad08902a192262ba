package gateway

import (
	"context"
)

// Mock is a scriptable Generator for tests.
type Mock struct {
	Reply string
	Err   error

	Calls []Request
}

func (m *Mock) Generate(_ context.Context, req Request) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply == "" {
		return "mock reply", nil
	}
	return m.Reply, nil
}

var _ Generator = (*Mock)(nil)

// CountHistory returns the history length of the i-th recorded call.
func (m *Mock) CountHistory(i int) int {
	if i < 0 || i >= len(m.Calls) {
		return -1
	}
	return len(m.Calls[i].History)
}
