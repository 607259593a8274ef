package mocks

import (
	"context"

	"narrative-server/internal/models"
	"narrative-server/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, story
func (_m *MockStoryRepository) Save(ctx context.Context, story *models.PersistedStory) (uuid.UUID, error) {
	ret := _m.Called(ctx, story)

	var r0 uuid.UUID
	if rf, ok := ret.Get(0).(func(context.Context, *models.PersistedStory) uuid.UUID); ok {
		r0 = rf(ctx, story)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(uuid.UUID)
	}

	return r0, ret.Error(1)
}

// Update provides a mock function with given fields: ctx, id, update
func (_m *MockStoryRepository) Update(ctx context.Context, id uuid.UUID, update models.StoryUpdate) error {
	ret := _m.Called(ctx, id, update)
	return ret.Error(0)
}

// List provides a mock function with given fields: ctx, limit, offset
func (_m *MockStoryRepository) List(ctx context.Context, limit int, offset int) ([]models.StorySummary, error) {
	ret := _m.Called(ctx, limit, offset)

	var r0 []models.StorySummary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.StorySummary)
	}

	return r0, ret.Error(1)
}

// Get provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) Get(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.PersistedStory
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.PersistedStory)
	}

	return r0, ret.Error(1)
}

// Delete provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ repository.StoryRepository = (*MockStoryRepository)(nil)
