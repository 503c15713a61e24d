package git

import "context"

// RemoteExecutor defines the git operations run against upstream repositories.
// This interface allows for mocking git operations in tests.
type RemoteExecutor interface {
	// Tags lists the tags of a remote repository, newest version first
	Tags(ctx context.Context, url string) ([]Ref, error)

	// Head returns the commit id the remote HEAD points to
	Head(ctx context.Context, url string) (string, error)

	// Checkout materializes ref of url into dir with a shallow fetch
	Checkout(ctx context.Context, url, ref, dir string) error
}
