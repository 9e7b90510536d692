package mocks

import (
	"context"

	"story-canvas/internal/ai"

	"github.com/stretchr/testify/mock"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, req
func (_m *MockAIClient) Complete(ctx context.Context, req ai.Request) (string, ai.Usage, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, ai.Request) string); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 ai.Usage
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(ai.Usage)
	}

	return r0, r1, ret.Error(2)
}

// NewMockAIClient creates a new instance of MockAIClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockAIClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ ai.AIClient = (*MockAIClient)(nil)
