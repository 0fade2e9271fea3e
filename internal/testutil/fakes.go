package testutil

import (
	"context"
	"fmt"
	"sync"
)

// FakeIssuer issues deterministic upload URLs.
type FakeIssuer struct {
	Bucket   string
	IssueErr error

	mu     sync.Mutex
	Issued []string // object keys
}

func (f *FakeIssuer) IssueUploadURL(_ context.Context, objectKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IssueErr != nil {
		return "", f.IssueErr
	}
	f.Issued = append(f.Issued, objectKey)
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s?X-Amz-Signature=fake", f.Bucket, objectKey), nil
}

func (f *FakeIssuer) AttachmentURL(userID, todoID string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s/%s", f.Bucket, userID, todoID)
}

// Event is one recorded publish.
type Event struct {
	RoutingKey string
	Payload    any
}

// FakePublisher records published events.
type FakePublisher struct {
	PublishErr error

	mu     sync.Mutex
	Events []Event
}

func (f *FakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Events = append(f.Events, Event{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (f *FakePublisher) RoutingKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, len(f.Events))
	for i, e := range f.Events {
		keys[i] = e.RoutingKey
	}
	return keys
}
