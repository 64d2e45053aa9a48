package test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// TestLogger forwards log lines to the test log.
type TestLogger struct {
	mtx sync.Mutex
	T   *testing.T
}

func (t *TestLogger) Debug(msg string, keyvals ...interface{}) {
	t.T.Helper()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.T.Log(append([]interface{}{"DEBUG: " + msg}, keyvals...)...)
}

func (t *TestLogger) Info(msg string, keyvals ...interface{}) {
	t.T.Helper()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.T.Log(append([]interface{}{"INFO:  " + msg}, keyvals...)...)
}

func (t *TestLogger) Error(msg string, keyvals ...interface{}) {
	t.T.Helper()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.T.Log(append([]interface{}{"ERROR: " + msg}, keyvals...)...)
}

// MockLogger records log lines so tests can assert on program output.
type MockLogger struct {
	mtx                             sync.Mutex
	DebugLines, InfoLines, ErrLines []string
}

func (t *MockLogger) Debug(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.DebugLines = append(t.DebugLines, fmt.Sprint(append([]interface{}{msg}, keyvals...)...))
}

func (t *MockLogger) Info(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.InfoLines = append(t.InfoLines, fmt.Sprint(append([]interface{}{msg}, keyvals...)...))
}

func (t *MockLogger) Error(msg string, keyvals ...interface{}) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.ErrLines = append(t.ErrLines, fmt.Sprint(append([]interface{}{msg}, keyvals...)...))
}

// HasInfo reports whether any info line starts with prefix.
func (t *MockLogger) HasInfo(prefix string) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, l := range t.InfoLines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
