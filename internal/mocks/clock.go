package mocks

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClock implements filesystem.Clock for testing across packages
type MockClock struct {
	mock.Mock
}

func (m *MockClock) Now() time.Time {
	args := m.Called()

	// Handle function return types (for stepping clocks)
	if fn, ok := args.Get(0).(func() time.Time); ok {
		return fn()
	}
	return args.Get(0).(time.Time)
}

// NewSteppingClock returns a MockClock whose Now starts at start and moves
// forward by step on every call
func NewSteppingClock(start time.Time, step time.Duration) *MockClock {
	var mu sync.Mutex
	cur := start
	m := &MockClock{}
	m.On("Now").Return(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(step)
		return now
	}).Maybe()
	return m
}
