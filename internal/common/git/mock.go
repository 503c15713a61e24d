package git

import "context"

// MockGitRunner implements RemoteExecutor for testing.
// Each method can be configured with a custom function to control behavior.
type MockGitRunner struct {
	TagsFunc     func(ctx context.Context, url string) ([]Ref, error)
	HeadFunc     func(ctx context.Context, url string) (string, error)
	CheckoutFunc func(ctx context.Context, url, ref, dir string) error
}

// NewMockGitRunner creates a new MockGitRunner
func NewMockGitRunner() *MockGitRunner {
	return &MockGitRunner{}
}

// Tags lists the remote tags
func (m *MockGitRunner) Tags(ctx context.Context, url string) ([]Ref, error) {
	if m.TagsFunc != nil {
		return m.TagsFunc(ctx, url)
	}
	return nil, nil
}

// Head returns the remote HEAD commit
func (m *MockGitRunner) Head(ctx context.Context, url string) (string, error) {
	if m.HeadFunc != nil {
		return m.HeadFunc(ctx, url)
	}
	return "", ErrNoHead
}

// Checkout materializes a ref into dir
func (m *MockGitRunner) Checkout(ctx context.Context, url, ref, dir string) error {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, url, ref, dir)
	}
	return nil
}

// Ensure MockGitRunner implements RemoteExecutor interface
var _ RemoteExecutor = (*MockGitRunner)(nil)
