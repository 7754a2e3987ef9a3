package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// MockProvider satisfies models.Provider for testing.
type MockProvider struct {
	Name_         string
	SubmitFunc    func(ctx context.Context, req models.GenerationRequest) (models.ProviderJob, error)
	GetStatusFunc func(ctx context.Context, providerJobID string) (models.ProviderJob, error)

	mu          sync.Mutex
	submitted   []models.GenerationRequest
	statusCalls int
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Submit(ctx context.Context, req models.GenerationRequest) (models.ProviderJob, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, req)
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return models.ProviderJob{ID: uuid.NewString(), Status: models.JobStatusProcessing}, nil
}

func (m *MockProvider) GetStatus(ctx context.Context, providerJobID string) (models.ProviderJob, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, providerJobID)
	}
	return models.ProviderJob{ID: providerJobID, Status: models.JobStatusProcessing}, nil
}

// Submitted returns a copy of every request passed to Submit.
func (m *MockProvider) Submitted() []models.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GenerationRequest(nil), m.submitted...)
}

// StatusCalls returns how many times GetStatus ran.
func (m *MockProvider) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

func completed(id string) models.ProviderJob {
	return models.ProviderJob{
		ID:     id,
		Status: models.JobStatusCompleted,
		Result: &models.ProviderResult{
			AssetURLs: []string{"https://assets.mock/" + id + ".png"},
			Meta:      map[string]any{"mock": true},
		},
	}
}

// NewMockProvider returns a MockProvider whose jobs are processing on submit
// and completed on the first status check.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SubmitFunc: func(_ context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			return models.ProviderJob{ID: "mock_" + uuid.NewString(), Status: models.JobStatusProcessing}, nil
		},
		GetStatusFunc: func(_ context.Context, id string) (models.ProviderJob, error) {
			return completed(id), nil
		},
	}
}

// NewSyncProvider returns a MockProvider that completes inside Submit.
func NewSyncProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-sync",
		SubmitFunc: func(_ context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			return completed("mock_" + uuid.NewString()), nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose Submit always returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SubmitFunc: func(_ context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			return models.ProviderJob{}, err
		},
		GetStatusFunc: func(_ context.Context, _ string) (models.ProviderJob, error) {
			return models.ProviderJob{}, err
		},
	}
}

// NewRejectingProvider returns a MockProvider that accepts work and then
// reports it failed with msg.
func NewRejectingProvider(msg string) *MockProvider {
	return &MockProvider{
		Name_: "mock-rejecting",
		SubmitFunc: func(_ context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			return models.ProviderJob{ID: "mock_" + uuid.NewString(), Status: models.JobStatusProcessing}, nil
		},
		GetStatusFunc: func(_ context.Context, id string) (models.ProviderJob, error) {
			return models.ProviderJob{ID: id, Status: models.JobStatusFailed, Error: msg}, nil
		},
	}
}

// NewStuckProvider returns a MockProvider whose jobs never leave processing.
func NewStuckProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-stuck",
		SubmitFunc: func(_ context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			return models.ProviderJob{ID: "mock_" + uuid.NewString(), Status: models.JobStatusProcessing}, nil
		},
	}
}

// NewTimeoutProvider returns a MockProvider whose calls block until the
// context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		SubmitFunc: func(ctx context.Context, _ models.GenerationRequest) (models.ProviderJob, error) {
			<-ctx.Done()
			return models.ProviderJob{}, provider.ErrProviderUnreachable
		},
		GetStatusFunc: func(ctx context.Context, _ string) (models.ProviderJob, error) {
			<-ctx.Done()
			return models.ProviderJob{}, provider.ErrProviderUnreachable
		},
	}
}

// Compile-time check that MockProvider implements Provider.
var _ models.Provider = (*MockProvider)(nil)
