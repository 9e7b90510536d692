package mocks

import (
	"context"

	"story-canvas/internal/audio"

	"github.com/stretchr/testify/mock"
)

// MockPlayer is a mock type for the Player type
type MockPlayer struct {
	mock.Mock
}

// Start provides a mock function with given fields: ctx, playbackID, kind, source
func (_m *MockPlayer) Start(ctx context.Context, playbackID string, kind audio.Kind, source string) error {
	ret := _m.Called(ctx, playbackID, kind, source)
	return ret.Error(0)
}

// Stop provides a mock function with given fields: playbackID
func (_m *MockPlayer) Stop(playbackID string) {
	_m.Called(playbackID)
}

// CancelSpeech provides a mock function with given fields:
func (_m *MockPlayer) CancelSpeech() {
	_m.Called()
}

// NewMockPlayer creates a new instance of MockPlayer. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPlayer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPlayer {
	m := &MockPlayer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ audio.Player = (*MockPlayer)(nil)

// MockArbiter is a mock type for the Arbiter type
type MockArbiter struct {
	mock.Mock
}

// StopAll provides a mock function with given fields:
func (_m *MockArbiter) StopAll() {
	_m.Called()
}

// PlayFromURL provides a mock function with given fields: ctx, locator
func (_m *MockArbiter) PlayFromURL(ctx context.Context, locator string) (audio.Playback, error) {
	ret := _m.Called(ctx, locator)

	var r0 audio.Playback
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(audio.Playback)
	}
	return r0, ret.Error(1)
}

// Speak provides a mock function with given fields: ctx, text
func (_m *MockArbiter) Speak(ctx context.Context, text string) (audio.Playback, error) {
	ret := _m.Called(ctx, text)

	var r0 audio.Playback
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(audio.Playback)
	}
	return r0, ret.Error(1)
}

// Current provides a mock function with given fields:
func (_m *MockArbiter) Current() audio.Playback {
	ret := _m.Called()

	var r0 audio.Playback
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(audio.Playback)
	}
	return r0
}

// Ended provides a mock function with given fields: playbackID
func (_m *MockArbiter) Ended(playbackID string) {
	_m.Called(playbackID)
}

// NewMockArbiter creates a new instance of MockArbiter. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockArbiter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockArbiter {
	m := &MockArbiter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ audio.Arbiter = (*MockArbiter)(nil)
