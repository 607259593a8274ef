package mocks

import (
	"context"

	"narrative-server/internal/generation"

	"github.com/stretchr/testify/mock"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, operation, systemPrompt, userInput, params
func (_m *MockAIClient) GenerateText(ctx context.Context, operation string, systemPrompt string, userInput string, params generation.GenerationParams) (string, generation.UsageInfo, error) {
	ret := _m.Called(ctx, operation, systemPrompt, userInput, params)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string, generation.GenerationParams) string); ok {
		r0 = rf(ctx, operation, systemPrompt, userInput, params)
	} else {
		r0 = ret.String(0)
	}

	var r1 generation.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(generation.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// GenerateTextStream provides a mock function with given fields: ctx, operation, systemPrompt, userInput, params, chunkHandler
func (_m *MockAIClient) GenerateTextStream(ctx context.Context, operation string, systemPrompt string, userInput string, params generation.GenerationParams, chunkHandler func(string) error) (generation.UsageInfo, error) {
	ret := _m.Called(ctx, operation, systemPrompt, userInput, params, chunkHandler)

	var r0 generation.UsageInfo
	if rf, ok := ret.Get(0).(func(context.Context, string, string, string, generation.GenerationParams, func(string) error) generation.UsageInfo); ok {
		r0 = rf(ctx, operation, systemPrompt, userInput, params, chunkHandler)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(generation.UsageInfo)
	}

	return r0, ret.Error(1)
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

var _ generation.AIClient = (*MockAIClient)(nil)
