package mocks

import (
	"context"

	"story-canvas/internal/models"
	"story-canvas/internal/orchestrator"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStoryService is a mock type for the StoryService type
type MockStoryService struct {
	mock.Mock
}

// GenerateStory provides a mock function with given fields: ctx, snapshot, currentStory, history
func (_m *MockStoryService) GenerateStory(ctx context.Context, snapshot models.DrawingSnapshot, currentStory string, history []models.Message) (string, error) {
	ret := _m.Called(ctx, snapshot, currentStory, history)
	return ret.String(0), ret.Error(1)
}

// UpdateStoryFromDrawing provides a mock function with given fields: ctx, previous, current, currentStory
func (_m *MockStoryService) UpdateStoryFromDrawing(ctx context.Context, previous, current models.DrawingSnapshot, currentStory string) (string, error) {
	ret := _m.Called(ctx, previous, current, currentStory)
	return ret.String(0), ret.Error(1)
}

// Chat provides a mock function with given fields: ctx, message, history, currentStory, drawingCompleted
func (_m *MockStoryService) Chat(ctx context.Context, message string, history []models.Message, currentStory string, drawingCompleted bool) (string, error) {
	ret := _m.Called(ctx, message, history, currentStory, drawingCompleted)
	return ret.String(0), ret.Error(1)
}

// GuidingQuestions provides a mock function with given fields: ctx, snapshot, story
func (_m *MockStoryService) GuidingQuestions(ctx context.Context, snapshot models.DrawingSnapshot, story string) (string, error) {
	ret := _m.Called(ctx, snapshot, story)
	return ret.String(0), ret.Error(1)
}

// UpdateStoryFromChat provides a mock function with given fields: ctx, currentStory, history, snapshot
func (_m *MockStoryService) UpdateStoryFromChat(ctx context.Context, currentStory string, history []models.Message, snapshot *models.DrawingSnapshot) (string, error) {
	ret := _m.Called(ctx, currentStory, history, snapshot)
	return ret.String(0), ret.Error(1)
}

// NewMockStoryService creates a new instance of MockStoryService. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryService {
	m := &MockStoryService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ orchestrator.StoryService = (*MockStoryService)(nil)

// MockVideoGenerator is a mock type for the VideoGenerator type
type MockVideoGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockVideoGenerator) Generate(ctx context.Context, req video.Request) (string, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, video.Request) string); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, video.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockVideoGenerator creates a new instance of MockVideoGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockVideoGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockVideoGenerator {
	m := &MockVideoGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ orchestrator.VideoGenerator = (*MockVideoGenerator)(nil)

// MockTaskRunner is a mock type for the TaskRunner type
type MockTaskRunner struct {
	mock.Mock
}

// SubmitTaskWithOwner provides a mock function with given fields: ctx, name, taskFunc, params, ownerID
func (_m *MockTaskRunner) SubmitTaskWithOwner(ctx context.Context, name string, taskFunc taskmanager.TaskFunc, params interface{}, ownerID string) (uuid.UUID, error) {
	ret := _m.Called(ctx, name, taskFunc, params, ownerID)

	var r0 uuid.UUID
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(uuid.UUID)
	}
	return r0, ret.Error(1)
}

// CancelTask provides a mock function with given fields: taskID
func (_m *MockTaskRunner) CancelTask(taskID uuid.UUID) error {
	ret := _m.Called(taskID)
	return ret.Error(0)
}

// NewMockTaskRunner creates a new instance of MockTaskRunner. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockTaskRunner(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTaskRunner {
	m := &MockTaskRunner{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ orchestrator.TaskRunner = (*MockTaskRunner)(nil)
