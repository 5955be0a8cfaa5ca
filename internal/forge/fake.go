package forge

import (
	"context"
	"sync"
)

// FakeClient is a hand-written in-memory Client for tests that don't want
// to stand up an httptest.Server — it just records calls and returns
// caller-configured results.
type FakeClient struct {
	mu sync.Mutex

	nextCommentID int64
	Comments      map[int64]string
	PRStatuses    map[int]PRStatus

	PostCommentErr   error
	UpdateCommentErr error
	CheckStatusErr   error
}

// NewFakeClient builds an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Comments:   make(map[int64]string),
		PRStatuses: make(map[int]PRStatus),
	}
}

func (f *FakeClient) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PostCommentErr != nil {
		return 0, f.PostCommentErr
	}
	f.nextCommentID++
	f.Comments[f.nextCommentID] = body
	return f.nextCommentID, nil
}

func (f *FakeClient) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateCommentErr != nil {
		return f.UpdateCommentErr
	}
	f.Comments[commentID] = body
	return nil
}

func (f *FakeClient) CheckPRStatus(ctx context.Context, owner, repo string, prNumber int) (PRStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CheckStatusErr != nil {
		return PRStatus{}, f.CheckStatusErr
	}
	if status, ok := f.PRStatuses[prNumber]; ok {
		return status, nil
	}
	return PRStatus{Open: true}, nil
}
