package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"imagecurator/worker/acquire"
	"imagecurator/worker/kafka"
	"imagecurator/worker/repository"
)

type mockRepo struct {
	getTaskFunc       func(ctx context.Context, productID string) (*repository.Task, error)
	markErrorFunc     func(ctx context.Context, productID, detail string) error
	recordFailureFunc func(ctx context.Context, productID, detail string) error
	completeTaskFunc  func(ctx context.Context, productID, workerID string) error

	markedError    bool
	recordedDetail string
	completed      bool
}

func (m *mockRepo) GetTask(ctx context.Context, productID string) (*repository.Task, error) {
	return m.getTaskFunc(ctx, productID)
}

func (m *mockRepo) MarkError(ctx context.Context, productID, detail string) error {
	m.markedError = true
	if m.markErrorFunc != nil {
		return m.markErrorFunc(ctx, productID, detail)
	}
	return nil
}

func (m *mockRepo) RecordFailure(ctx context.Context, productID, detail string) error {
	m.recordedDetail = detail
	if m.recordFailureFunc != nil {
		return m.recordFailureFunc(ctx, productID, detail)
	}
	return nil
}

func (m *mockRepo) CompleteTask(ctx context.Context, productID, workerID string) error {
	m.completed = true
	if m.completeTaskFunc != nil {
		return m.completeTaskFunc(ctx, productID, workerID)
	}
	return nil
}

type mockStatusStore struct {
	statuses          map[string]string
	candidatesSet     bool
	candidatesDeleted bool
}

func newMockStatusStore() *mockStatusStore {
	return &mockStatusStore{statuses: make(map[string]string)}
}

func (m *mockStatusStore) SetStatus(ctx context.Context, productID, status string) error {
	m.statuses[productID] = status
	return nil
}

func (m *mockStatusStore) SetCandidates(ctx context.Context, productID string, candidates interface{}) error {
	m.candidatesSet = true
	return nil
}

func (m *mockStatusStore) DeleteCandidates(ctx context.Context, productID string) error {
	m.candidatesDeleted = true
	return nil
}

type mockGatherer struct {
	gathered   bool
	gatherFunc func(ctx context.Context, task *repository.Task) ([]acquire.Candidate, error)
}

func (m *mockGatherer) Gather(ctx context.Context, task *repository.Task) ([]acquire.Candidate, error) {
	m.gathered = true
	if m.gatherFunc != nil {
		return m.gatherFunc(ctx, task)
	}
	return []acquire.Candidate{{FileName: "p-google-1.jpg", Provenance: "google", Ordinal: 1}}, nil
}

func (m *mockGatherer) WorkingDir(title string) string {
	return "/tmp/images/" + title
}

type mockPublisher struct {
	published  bool
	tornDown   bool
	publishErr error
}

func (m *mockPublisher) Publish(ctx context.Context, task *repository.Task, dir string, selected []string, thumbnail string) ([]string, error) {
	m.published = true
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return []string{"https://cdn.example/p/p-thumbnail.jpg"}, nil
}

func (m *mockPublisher) Teardown(dir string) {
	m.tornDown = true
}

func ownedTask() *repository.Task {
	return &repository.Task{
		ProductID: "prod_1",
		Title:     "Widget",
		Status:    repository.StatusProcessing,
		Assignee:  "worker-a",
	}
}

func newTestProcessor(t *testing.T, repo *mockRepo, cache *mockStatusStore, gatherer *mockGatherer, publisher *mockPublisher) *Processor {
	t.Helper()
	return NewProcessor(repo, cache, gatherer, publisher, zaptest.NewLogger(t))
}

func TestProcessor_Process_StaleJobDropped(t *testing.T) {
	cases := []struct {
		name string
		task *repository.Task
	}{
		{"restarted", &repository.Task{ProductID: "prod_1", Status: repository.StatusPending, Assignee: ""}},
		{"reassigned", &repository.Task{ProductID: "prod_1", Status: repository.StatusProcessing, Assignee: "worker-b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{
				getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
					return tc.task, nil
				},
			}
			gatherer := &mockGatherer{}
			publisher := &mockPublisher{}
			p := newTestProcessor(t, repo, newMockStatusStore(), gatherer, publisher)

			msg := &kafka.CurationMessage{TaskID: "prod_1", WorkerID: "worker-a", Action: kafka.ActionAcquire}
			if err := p.Process(context.Background(), msg); err != nil {
				t.Fatalf("Expected stale job to be dropped silently, got %v", err)
			}
			if gatherer.gathered || publisher.published {
				t.Error("Expected no pipeline work for a stale job")
			}
		})
	}
}

func TestProcessor_Process_AcquireSuccess(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
	}
	cache := newMockStatusStore()
	gatherer := &mockGatherer{}
	p := newTestProcessor(t, repo, cache, gatherer, &mockPublisher{})

	msg := &kafka.CurationMessage{TaskID: "prod_1", WorkerID: "worker-a", Action: kafka.ActionAcquire}
	if err := p.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !gatherer.gathered {
		t.Error("Expected acquisition to run")
	}
	if !cache.candidatesSet {
		t.Error("Expected candidate records published to cache")
	}
	if repo.markedError {
		t.Error("Expected no error state on success")
	}
}

func TestProcessor_Process_AcquireFailureMarksError(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
	}
	cache := newMockStatusStore()
	gatherer := &mockGatherer{
		gatherFunc: func(ctx context.Context, task *repository.Task) ([]acquire.Candidate, error) {
			return nil, errors.New("disk full")
		},
	}
	p := newTestProcessor(t, repo, cache, gatherer, &mockPublisher{})

	msg := &kafka.CurationMessage{TaskID: "prod_1", WorkerID: "worker-a", Action: kafka.ActionAcquire}
	if err := p.Process(context.Background(), msg); err == nil {
		t.Fatal("Expected error from failed acquisition")
	}

	if !repo.markedError {
		t.Error("Expected task marked as error")
	}
	if cache.statuses["prod_1"] != repository.StatusError {
		t.Errorf("Expected cached status error, got %q", cache.statuses["prod_1"])
	}
}

func TestProcessor_Process_PublishSuccess(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
	}
	cache := newMockStatusStore()
	publisher := &mockPublisher{}
	p := newTestProcessor(t, repo, cache, &mockGatherer{}, publisher)

	msg := &kafka.CurationMessage{
		TaskID:    "prod_1",
		WorkerID:  "worker-a",
		Action:    kafka.ActionPublish,
		Selected:  []string{"p-google-1.jpg"},
		Thumbnail: "p-google-1.jpg",
	}
	if err := p.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !repo.completed {
		t.Error("Expected terminal commit")
	}
	if !publisher.tornDown {
		t.Error("Expected working directory teardown after commit")
	}
	if cache.statuses["prod_1"] != repository.StatusDone {
		t.Errorf("Expected cached status done, got %q", cache.statuses["prod_1"])
	}
	if !cache.candidatesDeleted {
		t.Error("Expected candidate cache cleared")
	}
}

func TestProcessor_Process_PublishFailureKeepsProcessing(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
	}
	publisher := &mockPublisher{publishErr: errors.New("bucket unreachable")}
	p := newTestProcessor(t, repo, newMockStatusStore(), &mockGatherer{}, publisher)

	msg := &kafka.CurationMessage{
		TaskID:   "prod_1",
		WorkerID: "worker-a",
		Action:   kafka.ActionPublish,
		Selected: []string{"p-google-1.jpg"},
	}
	if err := p.Process(context.Background(), msg); err == nil {
		t.Fatal("Expected error from failed publication")
	}

	if repo.recordedDetail == "" {
		t.Error("Expected failure detail recorded")
	}
	if repo.markedError {
		t.Error("Expected task to stay processing, not terminal error")
	}
	if repo.completed {
		t.Error("Expected no terminal commit after failure")
	}
	if publisher.tornDown {
		t.Error("Expected working directory preserved after failure")
	}
}

func TestProcessor_Process_OwnershipLostSkipsTeardown(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
		completeTaskFunc: func(ctx context.Context, productID, workerID string) error {
			return repository.ErrOwnershipLost
		},
	}
	publisher := &mockPublisher{}
	p := newTestProcessor(t, repo, newMockStatusStore(), &mockGatherer{}, publisher)

	msg := &kafka.CurationMessage{
		TaskID:   "prod_1",
		WorkerID: "worker-a",
		Action:   kafka.ActionPublish,
		Selected: []string{"p-google-1.jpg"},
	}
	err := p.Process(context.Background(), msg)
	if !errors.Is(err, repository.ErrOwnershipLost) {
		t.Fatalf("Expected ErrOwnershipLost, got %v", err)
	}

	if publisher.tornDown {
		t.Error("Expected no teardown when ownership was lost before commit")
	}
}

func TestProcessor_Process_UnknownActionIgnored(t *testing.T) {
	repo := &mockRepo{
		getTaskFunc: func(ctx context.Context, productID string) (*repository.Task, error) {
			return ownedTask(), nil
		},
	}
	gatherer := &mockGatherer{}
	publisher := &mockPublisher{}
	p := newTestProcessor(t, repo, newMockStatusStore(), gatherer, publisher)

	msg := &kafka.CurationMessage{TaskID: "prod_1", WorkerID: "worker-a", Action: "reindex"}
	if err := p.Process(context.Background(), msg); err != nil {
		t.Fatalf("Expected unknown action to be ignored, got %v", err)
	}
	if gatherer.gathered || publisher.published {
		t.Error("Expected no pipeline work for unknown action")
	}
}
