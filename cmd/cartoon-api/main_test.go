package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmethakanbesel/cartoon-api/internal/config"
	"github.com/ahmethakanbesel/cartoon-api/internal/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/server"
	"github.com/ahmethakanbesel/cartoon-api/internal/storage"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Storage.OutputDir = t.TempDir()
	return cfg
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.JobsConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.JobsConfig{Store: "memory"}},
		{name: "sqlite in memory", cfg: config.JobsConfig{Store: "sqlite", DBPath: ":memory:"}},
		{name: "sqlite file", cfg: config.JobsConfig{Store: "sqlite", DBPath: filepath.Join(t.TempDir(), "jobs.db")}},
		{name: "unknown", cfg: config.JobsConfig{Store: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, closer, err := openStore(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer func() { _ = closer.Close() }()

			ctx := context.Background()
			if err := repo.Create(ctx, "j1"); err != nil {
				t.Fatalf("create: %v", err)
			}
			j, err := repo.Get(ctx, "j1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if j.Status != job.StatusProcessing {
				t.Errorf("expected processing, got %s", j.Status)
			}
		})
	}
}

func TestNewTransformer_DefaultsToLocal(t *testing.T) {
	cfg := loadConfig(t)
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := newTransformer(cfg, outputs)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	if tr.Name() != transform.Local {
		t.Errorf("expected local, got %s", tr.Name())
	}
}

func TestNewTransformer_PrefersCloudinaryWithCredentials(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Cloudinary.CloudName = "demo"
	cfg.Cloudinary.APIKey = "key"
	cfg.Cloudinary.APISecret = "secret"
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := newTransformer(cfg, outputs)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	if tr.Name() != transform.Cloudinary {
		t.Errorf("expected cloudinary, got %s", tr.Name())
	}

	cfg.Transform.Provider = transform.Local
	tr, err = newTransformer(cfg, outputs)
	if err != nil {
		t.Fatalf("new transformer: %v", err)
	}
	if tr.Name() != transform.Local {
		t.Errorf("explicit provider ignored, got %s", tr.Name())
	}
}

func TestNewTransformer_UnknownProvider(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Transform.Provider = "cloudinary"
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := newTransformer(cfg, outputs); err == nil {
		t.Fatal("expected error when cloudinary is selected without credentials")
	}
}

func TestNewApp_ServesJobLifecycle(t *testing.T) {
	for _, store := range []string{"memory", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			cfg := loadConfig(t)
			cfg.Jobs.Store = store
			cfg.Jobs.DBPath = ":memory:"

			a, err := newApp(cfg)
			if err != nil {
				t.Fatalf("new app: %v", err)
			}
			t.Cleanup(a.Close)

			ctx, cancel := context.WithCancel(context.Background())
			poolDone := make(chan struct{})
			go func() {
				a.pool.Run(ctx)
				close(poolDone)
			}()
			t.Cleanup(func() {
				cancel()
				<-poolDone
			})

			ts := httptest.NewServer(server.NewHandler(a.jobSvc, a.serverOpts))
			t.Cleanup(ts.Close)

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, _ := mw.CreateFormFile("image", "photo.png")
			_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\nrest-of-image"))
			_ = mw.Close()

			resp, err := http.Post(ts.URL+"/api/convert", mw.FormDataContentType(), &body) //nolint:gosec // test URL
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			var sub job.SubmitResponse
			err = json.NewDecoder(resp.Body).Decode(&sub)
			_ = resp.Body.Close()
			if err != nil || sub.JobID == "" {
				t.Fatalf("expected job id, got %+v (%v)", sub, err)
			}

			deadline := time.After(5 * time.Second)
			for {
				resp, err := http.Get(ts.URL + "/api/status/" + sub.JobID) //nolint:gosec // test URL
				if err != nil {
					t.Fatalf("status: %v", err)
				}
				var j job.Job
				err = json.NewDecoder(resp.Body).Decode(&j)
				_ = resp.Body.Close()
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if j.Status.Terminal() {
					if j.Status != job.StatusDone || j.ResultURL != "/outputs/"+sub.JobID+".png" {
						t.Fatalf("unexpected terminal job %+v", j)
					}
					return
				}
				select {
				case <-deadline:
					t.Fatal("timed out waiting for job")
				case <-time.After(20 * time.Millisecond):
				}
			}
		})
	}
}
