package pp_test

import (
	"testing"
	"time"

	"putplace/internal/catalog"
	"putplace/internal/pp"
	"putplace/internal/testutil"
)

func newProcessorFixture(t *testing.T) (*catalog.SQLiteCatalog, *testutil.MockFilesystemManager, *pp.Processor) {
	t.Helper()

	clock := testutil.FixedClock()
	cat, err := catalog.NewSQLiteCatalog(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	fsmgr := testutil.NewMockFilesystemManager()
	proc := pp.NewProcessor(cat, fsmgr, pp.NopSink{}, pp.NewNopLogger(), clock, pp.ProcessorOptions{
		BatchSize:  10,
		BatchDelay: 5 * time.Millisecond,
	})
	return cat, fsmgr, proc
}

// waitForDrain polls until no observations are pending or the deadline hits.
func waitForDrain(t *testing.T, cat *catalog.SQLiteCatalog) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := cat.CountUnprocessed()
		if err != nil {
			t.Fatalf("CountUnprocessed() error = %v", err)
		}
		if count == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("observations were not drained before the deadline")
}

func TestProcessor_ProcessesObservations(t *testing.T) {
	cat, fsmgr, proc := newProcessorFixture(t)

	content := []byte("file contents to be hashed")
	fsmgr.AddFile("/data/a.txt", content)

	obs := &pp.Observation{
		Filepath: "/data/a.txt",
		Ctime:    100,
		Mtime:    100,
		FileSize: int64(len(content)),
	}
	if _, err := cat.LogObservation(obs); err != nil {
		t.Fatalf("LogObservation() error = %v", err)
	}

	proc.Start()
	defer proc.Stop()

	waitForDrain(t, cat)

	want := testutil.SHA256Hex(content)
	rec, err := cat.ContentBySHA256(want)
	if err != nil {
		t.Fatalf("ContentBySHA256() error = %v", err)
	}
	if rec == nil {
		t.Fatal("no content record promoted for the observation")
	}
	if rec.Filepath != "/data/a.txt" {
		t.Errorf("Filepath = %s, want /data/a.txt", rec.Filepath)
	}
	if rec.SourceTable != obs.Partition {
		t.Errorf("SourceTable = %s, want %s", rec.SourceTable, obs.Partition)
	}
	if rec.SourceID != obs.ID {
		t.Errorf("SourceID = %d, want %d", rec.SourceID, obs.ID)
	}
	if rec.HasContent {
		t.Error("HasContent = true after checksum only, want false")
	}

	stats := proc.Stats()
	if stats.ProcessedToday < 1 {
		t.Errorf("ProcessedToday = %d, want >= 1", stats.ProcessedToday)
	}
}

func TestProcessor_DeduplicatesIdenticalContent(t *testing.T) {
	cat, fsmgr, proc := newProcessorFixture(t)

	content := []byte("same bytes everywhere")
	fsmgr.AddFile("/data/a.txt", content)
	fsmgr.AddFile("/data/b.txt", content)

	for _, p := range []string{"/data/a.txt", "/data/b.txt"} {
		if _, err := cat.LogObservation(&pp.Observation{Filepath: p, Ctime: 1, Mtime: 1}); err != nil {
			t.Fatalf("LogObservation(%s) error = %v", p, err)
		}
	}

	proc.Start()
	defer proc.Stop()

	waitForDrain(t, cat)

	rec, err := cat.ContentBySHA256(testutil.SHA256Hex(content))
	if err != nil {
		t.Fatalf("ContentBySHA256() error = %v", err)
	}
	if rec == nil {
		t.Fatal("no content record promoted")
	}
	// The epoch record keeps whichever file was promoted first; both
	// observations end up processed either way.
	if rec.Filepath != "/data/a.txt" && rec.Filepath != "/data/b.txt" {
		t.Errorf("Filepath = %s, want one of the two sources", rec.Filepath)
	}
}

func TestProcessor_AbandonsVanishedFiles(t *testing.T) {
	cat, fsmgr, proc := newProcessorFixture(t)

	fsmgr.AddFile("/data/gone.txt", []byte("soon deleted"))
	if _, err := cat.LogObservation(&pp.Observation{Filepath: "/data/gone.txt", Ctime: 1, Mtime: 1}); err != nil {
		t.Fatalf("LogObservation() error = %v", err)
	}

	// The file disappears between scan and checksum.
	fsmgr.RemoveFile("/data/gone.txt")

	proc.Start()
	defer proc.Stop()

	// Each batch retries the failed row until it is abandoned.
	waitForDrain(t, cat)

	entries, err := cat.UnprocessedObservations(10)
	if err != nil {
		t.Fatalf("UnprocessedObservations() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("pending entries = %d, want 0 after abandonment", len(entries))
	}

	stats := proc.Stats()
	if stats.FailedToday < 1 {
		t.Errorf("FailedToday = %d, want >= 1", stats.FailedToday)
	}
}

func TestProcessor_StartStop(t *testing.T) {
	t.Run("start is idempotent", func(t *testing.T) {
		_, _, proc := newProcessorFixture(t)

		proc.Start()
		proc.Start()

		if !proc.Stats().Running {
			t.Error("Running = false after Start")
		}

		proc.Stop()
		if proc.Stats().Running {
			t.Error("Running = true after Stop")
		}
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		_, _, proc := newProcessorFixture(t)
		proc.Stop()
	})

	t.Run("restart after stop", func(t *testing.T) {
		cat, fsmgr, proc := newProcessorFixture(t)

		proc.Start()
		proc.Stop()

		content := []byte("processed after restart")
		fsmgr.AddFile("/data/late.txt", content)
		if _, err := cat.LogObservation(&pp.Observation{Filepath: "/data/late.txt", Ctime: 1, Mtime: 1}); err != nil {
			t.Fatalf("LogObservation() error = %v", err)
		}

		proc.Start()
		defer proc.Stop()

		waitForDrain(t, cat)

		rec, err := cat.ContentBySHA256(testutil.SHA256Hex(content))
		if err != nil {
			t.Fatalf("ContentBySHA256() error = %v", err)
		}
		if rec == nil {
			t.Error("no content record promoted after restart")
		}
	})
}

func TestProcessor_PendingCount(t *testing.T) {
	cat, fsmgr, proc := newProcessorFixture(t)

	fsmgr.AddFile("/data/a.txt", []byte("a"))
	if _, err := cat.LogObservation(&pp.Observation{Filepath: "/data/a.txt", Ctime: 1, Mtime: 1}); err != nil {
		t.Fatalf("LogObservation() error = %v", err)
	}

	count, err := proc.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}
}
