package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"putplace/internal/config"
	"putplace/internal/pp"
)

// newTestApp wires a PPApp against an in-memory catalog and store with logs
// under a temp dir.
func newTestApp(t *testing.T) *PPApp {
	t.Helper()

	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Storage = config.StorageConfig{Type: "memory"}
	cfg.Database = config.DatabaseConfig{Type: "memory"}

	a, err := NewPPApp(context.Background(), cfg, "Test")
	if err != nil {
		t.Fatalf("NewPPApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return a
}

func TestPPApp_PathManagement(t *testing.T) {
	t.Run("add list remove round trip", func(t *testing.T) {
		a := newTestApp(t)
		dir := t.TempDir()

		p, err := a.AddPath(dir, true)
		if err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}

		paths, err := a.ListPaths()
		if err != nil {
			t.Fatalf("ListPaths() error = %v", err)
		}
		if len(paths) != 1 || paths[0].ID != p.ID {
			t.Fatalf("ListPaths() = %+v, want the registered path", paths)
		}

		if err := a.RemovePath(p.Path); err != nil {
			t.Fatalf("RemovePath() error = %v", err)
		}

		paths, err = a.ListPaths()
		if err != nil {
			t.Fatalf("ListPaths() error = %v", err)
		}
		if len(paths) != 0 {
			t.Errorf("ListPaths() after remove = %+v, want empty", paths)
		}
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		a := newTestApp(t)
		dir := t.TempDir()

		if _, err := a.AddPath(dir, true); err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}
		if _, err := a.AddPath(dir, true); err == nil {
			t.Error("second AddPath() returned nil error")
		}
	})

	t.Run("rejects files", func(t *testing.T) {
		a := newTestApp(t)
		file := filepath.Join(t.TempDir(), "file.txt")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}

		if _, err := a.AddPath(file, true); err == nil {
			t.Error("AddPath() on a file returned nil error")
		}
	})
}

func TestPPApp_Scan(t *testing.T) {
	a := newTestApp(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("aaa"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatalf("creating fixture dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "config"), []byte("git"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p, err := a.AddPath(dir, true)
	if err != nil {
		t.Fatalf("AddPath() error = %v", err)
	}
	if _, err := a.AddExclude(".git"); err != nil {
		t.Fatalf("AddExclude() error = %v", err)
	}

	result, err := a.Scan(p.Path, nil)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Logged != 1 {
		t.Errorf("Logged = %d, want 1 (exclude not applied?)", result.Logged)
	}

	pending, err := a.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("PendingCount() = %d, want 1", pending)
	}
}

func TestPPApp_Publish(t *testing.T) {
	a := newTestApp(t)

	file := filepath.Join(t.TempDir(), "doc.txt")
	content := []byte("published content")
	if err := os.WriteFile(file, content, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	reg, up, err := a.Publish(context.Background(), file)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !reg.UploadRequired {
		t.Error("UploadRequired = false for first publish, want true")
	}
	if up == nil || up.Outcome != pp.UploadStored {
		t.Fatalf("upload result = %+v, want UploadStored", up)
	}

	rec, err := a.Lookup(reg.Record.SHA256)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rec == nil || !rec.HasContent {
		t.Fatalf("Lookup() = %+v, want stored record", rec)
	}

	// A second file with identical bytes registers but transfers nothing.
	clone := filepath.Join(t.TempDir(), "copy.txt")
	if err := os.WriteFile(clone, content, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	reg2, up2, err := a.Publish(context.Background(), clone)
	if err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	if reg2.UploadRequired {
		t.Error("UploadRequired = true for duplicate content, want false")
	}
	if up2 != nil {
		t.Errorf("upload result for duplicate = %+v, want nil", up2)
	}

	clones, err := a.Clones(reg.Record.SHA256)
	if err != nil {
		t.Fatalf("Clones() error = %v", err)
	}
	if len(clones) != 2 {
		t.Fatalf("Clones() returned %d records, want 2", len(clones))
	}
	if !clones[0].HasFileContent {
		t.Error("first clone record HasFileContent = false, want the uploaded record first")
	}
}
