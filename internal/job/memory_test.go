package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maauso/jumpcutter/internal/cut"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testRequest())

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
	if saved.Request.InputPath != "talk.mp4" {
		t.Errorf("expected request to be stored, got %+v", saved.Request)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testRequest())

	_ = repo.Save(ctx, job)

	_ = job.Start()
	job.UpdateProgress(50)
	job.AddOutput(Output{Mode: cut.ModeSilent, Path: "out.mp4"})
	_ = repo.Save(ctx, job)

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, saved.Status)
	}
	if saved.Progress != 50 {
		t.Errorf("expected progress 50, got %d", saved.Progress)
	}
	if len(saved.Outputs) != 1 {
		t.Errorf("expected 1 output, got %d", len(saved.Outputs))
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testRequest())
	_ = repo.Save(ctx, job)

	found, _ := repo.FindByID(ctx, job.ID)

	found.Progress = 99
	found.Request.Modes[0] = cut.ModeVoiced
	_ = found.Start()

	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying returned job should not affect repository")
	}
	if original.Status != StatusInQueue {
		t.Error("modifying returned job status should not affect repository")
	}
	if original.Request.Modes[0] != cut.ModeSilent {
		t.Error("modifying returned request should not affect repository")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}

	older := NewWithID("job-older", testRequest())
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := NewWithID("job-newer", testRequest())
	_ = repo.Save(ctx, older)
	_ = repo.Save(ctx, newer)

	jobs, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "job-newer" || jobs[1].ID != "job-older" {
		t.Errorf("expected newest first, got %s, %s", jobs[0].ID, jobs[1].ID)
	}
}

func TestMemoryRepository_List_ReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testRequest())
	_ = repo.Save(ctx, job)

	jobs, _ := repo.List(ctx)
	jobs[0].Progress = 99

	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying listed job should not affect repository")
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(testRequest())
	_ = repo.Save(ctx, job)

	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := repo.FindByID(ctx, job.ID)
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_Delete_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	err := repo.Delete(context.Background(), "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = repo.Save(ctx, New(testRequest()))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx)
		}
	}()

	wg.Wait()
}
