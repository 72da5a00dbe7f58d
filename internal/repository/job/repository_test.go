package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmethakanbesel/cartoon-api/internal/apperror"
	domain "github.com/ahmethakanbesel/cartoon-api/internal/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/platform/sqlite"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var backends = map[string]func(t *testing.T) domain.Repository{
	"memory": func(_ *testing.T) domain.Repository { return NewMemoryRepository() },
	"sqlite": func(t *testing.T) domain.Repository { return NewRepository(setupTestDB(t).DB) },
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo domain.Repository)) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newRepo(t))
		})
	}
}

func TestCreate_And_Get(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		if err := repo.Create(ctx, "job-1"); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := repo.Get(ctx, "job-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != "job-1" {
			t.Errorf("expected id job-1, got %s", got.ID)
		}
		if got.Status != domain.StatusProcessing {
			t.Errorf("expected processing, got %s", got.Status)
		}
		if got.Progress != 0 || got.ResultURL != "" || got.Error != "" {
			t.Errorf("unexpected initial record: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected createdAt to be set")
		}
	})
}

func TestCreate_Duplicate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		if err := repo.Create(ctx, "dup"); err != nil {
			t.Fatal(err)
		}
		err := repo.Create(ctx, "dup")
		if !apperror.Is(err, apperror.Conflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}

func TestGet_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		_, err := repo.Get(context.Background(), "missing")
		if !apperror.Is(err, apperror.NotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestGet_ReturnsCopy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		if err := repo.Create(ctx, "copy"); err != nil {
			t.Fatal(err)
		}
		got, _ := repo.Get(ctx, "copy")
		got.Status = domain.StatusDone
		got.Progress = 100

		again, _ := repo.Get(ctx, "copy")
		if again.Status != domain.StatusProcessing || again.Progress != 0 {
			t.Errorf("mutating a snapshot leaked into the store: %+v", again)
		}
	})
}

func TestUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		if err := repo.Create(ctx, "upd"); err != nil {
			t.Fatal(err)
		}

		err := repo.Update(ctx, "upd", func(j *domain.Job) {
			j.Status = domain.StatusDone
			j.Progress = 100
			j.ResultURL = "https://cdn.example/upd.png"
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		got, _ := repo.Get(ctx, "upd")
		if got.Status != domain.StatusDone {
			t.Errorf("expected done, got %s", got.Status)
		}
		if got.ResultURL != "https://cdn.example/upd.png" {
			t.Errorf("unexpected result url %q", got.ResultURL)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Errorf("updatedAt %v before createdAt %v", got.UpdatedAt, got.CreatedAt)
		}
	})
}

func TestUpdate_UnknownIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		called := false
		err := repo.Update(context.Background(), "ghost", func(*domain.Job) { called = true })
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if called {
			t.Error("mutator must not run for unknown id")
		}
		if _, err := repo.Get(context.Background(), "ghost"); err == nil {
			t.Error("update must not create a record")
		}
	})
}

func TestUpdate_ConcurrentIncrementsAreNotLost(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		if err := repo.Create(ctx, "race"); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = repo.Update(ctx, "race", func(j *domain.Job) { j.Progress++ })
			}()
		}
		wg.Wait()

		got, _ := repo.Get(ctx, "race")
		if got.Progress != 50 {
			t.Errorf("expected 50 increments, got %d", got.Progress)
		}
	})
}

func TestPrune(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		for i, status := range []domain.Status{domain.StatusDone, domain.StatusError, domain.StatusProcessing} {
			id := fmt.Sprintf("p%d", i)
			if err := repo.Create(ctx, id); err != nil {
				t.Fatal(err)
			}
			if status != domain.StatusProcessing {
				_ = repo.Update(ctx, id, func(j *domain.Job) { j.Status = status })
			}
		}

		// Cutoff in the past keeps everything.
		n, err := repo.Prune(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 pruned, got %d", n)
		}

		n, err = repo.Prune(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 terminal jobs pruned, got %d", n)
		}
		if _, err := repo.Get(ctx, "p2"); err != nil {
			t.Errorf("processing job must survive pruning: %v", err)
		}
	})
}

func TestFailStale(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo domain.Repository) {
		ctx := context.Background()
		_ = repo.Create(ctx, "running")
		_ = repo.Create(ctx, "finished")
		_ = repo.Update(ctx, "finished", func(j *domain.Job) {
			j.Status = domain.StatusDone
			j.Progress = 100
			j.ResultURL = "/outputs/finished.png"
		})

		n, err := repo.FailStale(ctx, "interrupted by restart")
		if err != nil {
			t.Fatalf("fail stale: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 failed, got %d", n)
		}

		got, _ := repo.Get(ctx, "running")
		if got.Status != domain.StatusError || got.Error != "interrupted by restart" {
			t.Errorf("unexpected record after fail stale: %+v", got)
		}
		done, _ := repo.Get(ctx, "finished")
		if done.Status != domain.StatusDone {
			t.Errorf("terminal job must not change, got %s", done.Status)
		}

		n2, err := repo.FailStale(ctx, "interrupted by restart")
		if err != nil {
			t.Fatalf("fail stale again: %v", err)
		}
		if n2 != 0 {
			t.Errorf("expected 0, got %d", n2)
		}
	})
}
