package mocks

import (
	"context"

	"story-canvas/internal/narration"

	"github.com/stretchr/testify/mock"
)

// MockSynthesizer is a mock type for the Synthesizer type
type MockSynthesizer struct {
	mock.Mock
}

// TextToVoice provides a mock function with given fields: ctx, text
func (_m *MockSynthesizer) TextToVoice(ctx context.Context, text string) ([]byte, error) {
	ret := _m.Called(ctx, text)

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// NewMockSynthesizer creates a new instance of MockSynthesizer. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockSynthesizer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSynthesizer {
	m := &MockSynthesizer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ narration.Synthesizer = (*MockSynthesizer)(nil)
