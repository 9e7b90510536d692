package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSpeechRecognizer is a mock type for the SpeechRecognizer type
type MockSpeechRecognizer struct {
	mock.Mock
}

// SentenceRecognition provides a mock function with given fields: ctx, audio, voiceFormat
func (_m *MockSpeechRecognizer) SentenceRecognition(ctx context.Context, audio []byte, voiceFormat string) (string, error) {
	ret := _m.Called(ctx, audio, voiceFormat)
	return ret.String(0), ret.Error(1)
}

// NewMockSpeechRecognizer creates a new instance of MockSpeechRecognizer. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockSpeechRecognizer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSpeechRecognizer {
	m := &MockSpeechRecognizer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
