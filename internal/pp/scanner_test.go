package pp_test

import (
	"testing"

	"putplace/internal/catalog"
	"putplace/internal/pp"
	"putplace/internal/testutil"
)

func newScannerFixture(t *testing.T) (*catalog.SQLiteCatalog, *testutil.MockFilesystemManager, *pp.Scanner) {
	t.Helper()

	clock := testutil.FixedClock()
	cat, err := catalog.NewSQLiteCatalog(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	fsmgr := testutil.NewMockFilesystemManager()
	scanner := pp.NewScanner(cat, fsmgr, pp.NopSink{}, pp.NewNopLogger(), clock, 4, nil)
	return cat, fsmgr, scanner
}

func TestScanner_Scan(t *testing.T) {
	t.Run("journals every discovered file", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("aaa"))
		fsmgr.AddFile("/data/sub/b.txt", []byte("bbb"))
		fsmgr.AddFile("/data/sub/c.txt", []byte("ccc"))

		result, err := scanner.Scan(0, "/data", true, nil, nil)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if result.Total != 3 {
			t.Errorf("Total = %d, want 3", result.Total)
		}
		if result.Logged != 3 {
			t.Errorf("Logged = %d, want 3", result.Logged)
		}
		if len(result.Errors) != 0 {
			t.Errorf("Errors = %v, want none", result.Errors)
		}

		count, err := cat.CountUnprocessed()
		if err != nil {
			t.Fatalf("CountUnprocessed() error = %v", err)
		}
		if count != 3 {
			t.Errorf("CountUnprocessed() = %d, want 3", count)
		}
	})

	t.Run("rescan of unchanged tree journals nothing", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("aaa"))
		fsmgr.AddFile("/data/b.txt", []byte("bbb"))

		if _, err := scanner.Scan(0, "/data", true, nil, nil); err != nil {
			t.Fatalf("first Scan() error = %v", err)
		}

		result, err := scanner.Scan(0, "/data", true, nil, nil)
		if err != nil {
			t.Fatalf("second Scan() error = %v", err)
		}
		if result.Logged != 0 {
			t.Errorf("Logged on rescan = %d, want 0", result.Logged)
		}
		if result.Skipped != 2 {
			t.Errorf("Skipped on rescan = %d, want 2", result.Skipped)
		}

		count, err := cat.CountUnprocessed()
		if err != nil {
			t.Fatalf("CountUnprocessed() error = %v", err)
		}
		if count != 2 {
			t.Errorf("CountUnprocessed() after rescan = %d, want 2", count)
		}
	})

	t.Run("modified file is journaled again", func(t *testing.T) {
		_, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("aaa"))
		fsmgr.AddFile("/data/b.txt", []byte("bbb"))

		if _, err := scanner.Scan(0, "/data", true, nil, nil); err != nil {
			t.Fatalf("first Scan() error = %v", err)
		}

		fsmgr.Touch("/data/a.txt")

		result, err := scanner.Scan(0, "/data", true, nil, nil)
		if err != nil {
			t.Fatalf("second Scan() error = %v", err)
		}
		if result.Logged != 1 {
			t.Errorf("Logged = %d, want 1", result.Logged)
		}
		if result.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1", result.Skipped)
		}
	})

	t.Run("exclusion patterns filter before any journaling", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/keep.txt", []byte("keep"))
		fsmgr.AddFile("/data/app.log", []byte("log"))
		fsmgr.AddFile("/data/.git/config", []byte("git"))

		result, err := scanner.Scan(0, "/data", true, []string{".git", "*.log"}, nil)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if result.Total != 1 {
			t.Errorf("Total = %d, want 1", result.Total)
		}
		if result.Logged != 1 {
			t.Errorf("Logged = %d, want 1", result.Logged)
		}

		entries, err := cat.UnprocessedObservations(10)
		if err != nil {
			t.Fatalf("UnprocessedObservations() error = %v", err)
		}
		if len(entries) != 1 || entries[0].Filepath != "/data/keep.txt" {
			t.Errorf("journaled entries = %v, want only /data/keep.txt", entries)
		}
	})

	t.Run("missing root yields zero result not error", func(t *testing.T) {
		_, _, scanner := newScannerFixture(t)

		result, err := scanner.Scan(0, "/nonexistent", true, nil, nil)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if result.Total != 0 {
			t.Errorf("Total = %d, want 0", result.Total)
		}
	})

	t.Run("non-recursive scan ignores subdirectories", func(t *testing.T) {
		_, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/top.txt", []byte("top"))
		fsmgr.AddFile("/data/sub/deep.txt", []byte("deep"))

		result, err := scanner.Scan(0, "/data", false, nil, nil)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if result.Total != 1 {
			t.Errorf("Total = %d, want 1", result.Total)
		}
	})

	t.Run("reports progress in completion order", func(t *testing.T) {
		_, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		for _, name := range []string{"a", "b", "c", "d"} {
			fsmgr.AddFile("/data/"+name+".txt", []byte(name))
		}

		var updates []pp.ScanProgress
		_, err := scanner.Scan(0, "/data", true, nil, func(p pp.ScanProgress) {
			updates = append(updates, p)
		})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}

		// Initial update plus one per completed file.
		if len(updates) != 5 {
			t.Fatalf("received %d progress updates, want 5", len(updates))
		}
		last := updates[len(updates)-1]
		if last.Scanned != 4 || last.Logged != 4 {
			t.Errorf("final progress = %+v, want Scanned=4 Logged=4", last)
		}
	})
}

func TestScanner_ScanAll(t *testing.T) {
	t.Run("scans every enabled path with system-wide excludes", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/one")
		fsmgr.AddFile("/one/a.txt", []byte("a"))
		fsmgr.AddFile("/one/skip.log", []byte("skip"))
		fsmgr.AddDirectory("/two")
		fsmgr.AddFile("/two/b.txt", []byte("b"))

		if _, err := cat.AddPath("/one", true); err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}
		if _, err := cat.AddPath("/two", true); err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}
		if _, err := cat.AddExclude("*.log"); err != nil {
			t.Fatalf("AddExclude() error = %v", err)
		}

		results, err := scanner.ScanAll(nil)
		if err != nil {
			t.Fatalf("ScanAll() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("ScanAll() returned %d results, want 2", len(results))
		}

		var totalLogged int
		for _, r := range results {
			totalLogged += r.Logged
		}
		if totalLogged != 2 {
			t.Errorf("total logged = %d, want 2 (excluded file journaled?)", totalLogged)
		}
	})

	t.Run("skips disabled and missing paths", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/present")
		fsmgr.AddFile("/present/a.txt", []byte("a"))

		if _, err := cat.AddPath("/present", true); err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}
		disabled, err := cat.AddPath("/disabled", true)
		if err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}
		if err := cat.SetPathEnabled(disabled.ID, false); err != nil {
			t.Fatalf("SetPathEnabled() error = %v", err)
		}
		if _, err := cat.AddPath("/gone", true); err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}

		results, err := scanner.ScanAll(nil)
		if err != nil {
			t.Fatalf("ScanAll() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("ScanAll() returned %d results, want 1", len(results))
		}
		if results[0].Path != "/present" {
			t.Errorf("scanned path = %s, want /present", results[0].Path)
		}
	})

	t.Run("updates last_scanned_at", func(t *testing.T) {
		cat, fsmgr, scanner := newScannerFixture(t)

		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("a"))

		p, err := cat.AddPath("/data", true)
		if err != nil {
			t.Fatalf("AddPath() error = %v", err)
		}

		if _, err := scanner.ScanAll(nil); err != nil {
			t.Fatalf("ScanAll() error = %v", err)
		}

		found, err := cat.GetPath(p.ID)
		if err != nil {
			t.Fatalf("GetPath() error = %v", err)
		}
		if found.LastScannedAt == nil {
			t.Error("LastScannedAt is nil after scan")
		}
	})
}
