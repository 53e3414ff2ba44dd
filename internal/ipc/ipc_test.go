package ipc

import (
	"context"
	"path/filepath"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/daemon"
	"storyforge/internal/logging"
	"storyforge/internal/queue"
	"storyforge/internal/stage"
	"storyforge/internal/workflow"
)

type stubStage struct{}

func (stubStage) Prepare(context.Context, *queue.Task) error { return nil }
func (stubStage) Execute(context.Context, *queue.Task) error { return nil }
func (stubStage) HealthCheck(context.Context) stage.Health   { return stage.Healthy("stub") }

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	wf := workflow.NewManager(cfg, store, logging.NewNop())
	wf.ConfigureStages(workflow.StageSet{
		ScriptGenerator:  stubStage{},
		ScenePlanner:     stubStage{},
		AssetGenerator:   stubStage{},
		VideoSynthesizer: stubStage{},
		Compositor:       stubStage{},
	})
	d, err := daemon.New(cfg, store, logging.NewNop(), wf)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	socket := filepath.Join(base, "ctl.sock")
	server, err := NewServer(context.Background(), socket, d, logging.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := Dial(socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSubmitAndDescribeOverSocket(t *testing.T) {
	client := newTestClient(t)

	submitted, err := client.Submit(SubmitRequest{Owner: "alice", Prompt: "A story about tides", Style: "ink wash"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Task.ID == 0 || submitted.Task.Status != string(queue.StatusPending) {
		t.Fatalf("submitted task = %+v", submitted.Task)
	}

	described, err := client.QueueDescribe(submitted.Task.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if described.Task.Prompt != "A story about tides" || described.Task.Style != "ink wash" {
		t.Fatalf("described task = %+v", described.Task)
	}
}

func TestSubmitRejectsEmptyPromptOverSocket(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Submit(SubmitRequest{Prompt: "   "}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueueListFiltersByStatus(t *testing.T) {
	client := newTestClient(t)

	first, err := client.Submit(SubmitRequest{Prompt: "A story about tides"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.Submit(SubmitRequest{Prompt: "A story about dunes"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.QueuePause(first.Task.ID); err != nil {
		t.Fatalf("QueuePause: %v", err)
	}

	paused, err := client.QueueList(QueueListRequest{Statuses: []string{"paused"}})
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(paused.Tasks) != 1 || paused.Tasks[0].ID != first.Task.ID {
		t.Fatalf("paused tasks = %+v", paused.Tasks)
	}

	all, err := client.QueueList(QueueListRequest{})
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(all.Tasks) != 2 {
		t.Fatalf("all tasks = %+v", all.Tasks)
	}
}

func TestPauseResumeCancelOverSocket(t *testing.T) {
	client := newTestClient(t)

	submitted, err := client.Submit(SubmitRequest{Prompt: "A story about tides"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if resp, err := client.QueuePause(submitted.Task.ID); err != nil || !resp.Applied {
		t.Fatalf("QueuePause = %+v, %v", resp, err)
	}
	if resp, err := client.QueueResume(submitted.Task.ID); err != nil || !resp.Applied {
		t.Fatalf("QueueResume = %+v, %v", resp, err)
	}
	if resp, err := client.QueueCancel(submitted.Task.ID); err != nil || !resp.Applied {
		t.Fatalf("QueueCancel = %+v, %v", resp, err)
	}

	described, err := client.QueueDescribe(submitted.Task.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if described.Task.Status != string(queue.StatusCancelled) {
		t.Fatalf("status after cancel = %s", described.Task.Status)
	}
}

func TestQueueHealthAndStatus(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.Submit(SubmitRequest{Prompt: "A story about tides"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	health, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Total != 1 || health.Pending != 1 {
		t.Fatalf("health = %+v", health)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.QueueStats[string(queue.StatusPending)] != 1 {
		t.Fatalf("queue stats = %v", status.QueueStats)
	}
	if len(status.StageHealth) != 5 {
		t.Fatalf("stage health = %+v", status.StageHealth)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("status should report dependency checks")
	}
}

func TestQueueRemoveAndClear(t *testing.T) {
	client := newTestClient(t)

	first, err := client.Submit(SubmitRequest{Prompt: "A story about tides"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.Submit(SubmitRequest{Prompt: "A story about dunes"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	removed, err := client.QueueRemove([]int64{first.Task.ID})
	if err != nil {
		t.Fatalf("QueueRemove: %v", err)
	}
	if removed.Removed != 1 {
		t.Fatalf("removed = %d", removed.Removed)
	}

	cleared, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("cleared = %d", cleared.Removed)
	}
}

func TestDatabaseHealthOverSocket(t *testing.T) {
	client := newTestClient(t)

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists {
		t.Fatalf("database health = %+v", health)
	}
}
