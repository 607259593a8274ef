package mocks

import (
	"context"

	"narrative-server/internal/session"

	"github.com/stretchr/testify/mock"
)

// MockOptionGenerator is a mock type for the OptionGenerator type
type MockOptionGenerator struct {
	mock.Mock
}

// GenerateOptions provides a mock function with given fields: ctx, currentText
func (_m *MockOptionGenerator) GenerateOptions(ctx context.Context, currentText string) ([]string, error) {
	ret := _m.Called(ctx, currentText)

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context, string) []string); ok {
		r0 = rf(ctx, currentText)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	return r0, ret.Error(1)
}

// NewMockOptionGenerator creates a new instance of MockOptionGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockOptionGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOptionGenerator {
	m := &MockOptionGenerator{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockImaginer is a mock type for the Imaginer type
type MockImaginer struct {
	mock.Mock
}

// Imagine provides a mock function with given fields: ctx, prompt
func (_m *MockImaginer) Imagine(ctx context.Context, prompt string) (string, error) {
	ret := _m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

// NewMockImaginer creates a new instance of MockImaginer. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockImaginer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockImaginer {
	m := &MockImaginer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var (
	_ session.OptionGenerator = (*MockOptionGenerator)(nil)
	_ session.Imaginer        = (*MockImaginer)(nil)
)
