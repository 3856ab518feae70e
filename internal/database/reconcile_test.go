package database

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"abus-go/internal/abus"
)

const (
	run1 = "2017_07_14_1200"
	run2 = "2017_07_15_1200"
	run3 = "2017_07_16_1200"
)

func locationRows(t *testing.T, c *SQLiteCatalog) []abus.LocationRecord {
	t.Helper()
	rows, err := c.db.Query(`SELECT checksum, archive_dir, is_compressed FROM location ORDER BY checksum`)
	if err != nil {
		t.Fatalf("querying locations: %v", err)
	}
	defer rows.Close()

	var got []abus.LocationRecord
	for rows.Next() {
		var r abus.LocationRecord
		if err := rows.Scan(&r.Checksum, &r.ArchiveDir, &r.IsCompressed); err != nil {
			t.Fatalf("scanning location: %v", err)
		}
		got = append(got, r)
	}
	return got
}

func contentRows(t *testing.T, c *SQLiteCatalog) []abus.ContentRecord {
	t.Helper()
	rows, err := c.db.Query(`SELECT run_name, path, timestamp, checksum FROM content ORDER BY run_name, path`)
	if err != nil {
		t.Fatalf("querying content: %v", err)
	}
	defer rows.Close()

	var got []abus.ContentRecord
	for rows.Next() {
		var r abus.ContentRecord
		if err := rows.Scan(&r.RunName, &r.Path, &r.Timestamp, &r.Checksum); err != nil {
			t.Fatalf("scanning content: %v", err)
		}
		got = append(got, r)
	}
	return got
}

func deletionRows(t *testing.T, c *SQLiteCatalog) []abus.DeletionRecord {
	t.Helper()
	rows, err := c.db.Query(`SELECT path, timestamp FROM deletion ORDER BY path`)
	if err != nil {
		t.Fatalf("querying deletions: %v", err)
	}
	defer rows.Close()

	var got []abus.DeletionRecord
	for rows.Next() {
		var r abus.DeletionRecord
		if err := rows.Scan(&r.Path, &r.Timestamp); err != nil {
			t.Fatalf("scanning deletion: %v", err)
		}
		got = append(got, r)
	}
	return got
}

func mustReconcileLocations(t *testing.T, c *SQLiteCatalog, locs ...abus.LocationRecord) abus.LocationCounts {
	t.Helper()
	counts, err := c.ReconcileLocations(locs)
	if err != nil {
		t.Fatalf("ReconcileLocations() error = %v", err)
	}
	return counts
}

func mustReconcileContent(t *testing.T, c *SQLiteCatalog, run string, obs ...abus.ContentObservation) abus.ContentCounts {
	t.Helper()
	counts, err := c.ReconcileContent(abus.RunRecord{RunName: run, ArchiveDir: "00"}, obs)
	if err != nil {
		t.Fatalf("ReconcileContent(%s) error = %v", run, err)
	}
	return counts
}

func obs(checksum, ts, path string) abus.ContentObservation {
	return abus.ContentObservation{Checksum: checksum, Timestamp: ts, Path: path}
}

func TestReconcileLocations(t *testing.T) {
	t.Run("insert then delete", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "2024/01"})

		got := mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "2024/01"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "2024/02", IsCompressed: true},
		)
		if want := (abus.LocationCounts{Inserts: 1}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
		if n := len(locationRows(t, c)); n != 2 {
			t.Errorf("location rows = %d, want 2", n)
		}

		got = mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H2", ArchiveDir: "2024/02", IsCompressed: true})
		if want := (abus.LocationCounts{Deletes: 1}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
		want := []abus.LocationRecord{{Checksum: "H2", ArchiveDir: "2024/02", IsCompressed: true}}
		if diff := cmp.Diff(want, locationRows(t, c)); diff != "" {
			t.Errorf("locations mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("updates changed directory and compression", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H3", ArchiveDir: "00"},
		)

		got := mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "01"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00", IsCompressed: true},
			abus.LocationRecord{Checksum: "H3", ArchiveDir: "00"},
		)
		if want := (abus.LocationCounts{Updates: 2}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		c := newTestCatalog(t)
		locs := []abus.LocationRecord{
			{Checksum: "H1", ArchiveDir: "00"},
			{Checksum: "H2", ArchiveDir: "01", IsCompressed: true},
		}
		mustReconcileLocations(t, c, locs...)
		if got := mustReconcileLocations(t, c, locs...); got != (abus.LocationCounts{}) {
			t.Errorf("second pass counts = %+v, want zero", got)
		}
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		c := newTestCatalog(t)
		got := mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "01", IsCompressed: true},
		)
		if want := (abus.LocationCounts{Inserts: 1}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
		want := []abus.LocationRecord{{Checksum: "H1", ArchiveDir: "01", IsCompressed: true}}
		if diff := cmp.Diff(want, locationRows(t, c)); diff != "" {
			t.Errorf("locations mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("clears deletions", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileContent(t, c, run1, obs(abus.ChecksumDeleted, "100", "/gone"))
		if n := len(deletionRows(t, c)); n != 1 {
			t.Fatalf("deletion rows = %d, want 1", n)
		}

		mustReconcileLocations(t, c)
		if rows := deletionRows(t, c); len(rows) != 0 {
			t.Errorf("deletions after ReconcileLocations = %v, want none", rows)
		}
	})

	t.Run("counts equal the set difference", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 2))
		for i := 0; i < 25; i++ {
			t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
				c := newTestCatalog(t)
				old := randomLocations(rng)
				next := randomLocations(rng)
				mustReconcileLocations(t, c, old...)

				got := mustReconcileLocations(t, c, next...)
				if want := expectedLocationCounts(old, next); got != want {
					t.Errorf("counts = %+v, want %+v", got, want)
				}
				if n := len(locationRows(t, c)); n != len(next) {
					t.Errorf("location rows = %d, want %d", n, len(next))
				}
			})
		}
	})
}

func randomLocations(rng *rand.Rand) []abus.LocationRecord {
	var locs []abus.LocationRecord
	for i := 0; i < 20; i++ {
		if rng.IntN(2) == 0 {
			continue
		}
		locs = append(locs, abus.LocationRecord{
			Checksum:     fmt.Sprintf("H%02d", i),
			ArchiveDir:   fmt.Sprintf("%02d", rng.IntN(2)),
			IsCompressed: rng.IntN(2) == 0,
		})
	}
	return locs
}

func expectedLocationCounts(old, next []abus.LocationRecord) abus.LocationCounts {
	before := make(map[string]abus.LocationRecord)
	for _, l := range old {
		before[l.Checksum] = l
	}
	var want abus.LocationCounts
	for _, l := range next {
		prev, ok := before[l.Checksum]
		switch {
		case !ok:
			want.Inserts++
		case prev != l:
			want.Updates++
		}
		delete(before, l.Checksum)
	}
	want.Deletes = len(before)
	return want
}

func TestReconcileContent(t *testing.T) {
	t.Run("new run on empty catalog", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "abc123", ArchiveDir: "archives/run1"})

		got, err := c.ReconcileContent(
			abus.RunRecord{RunName: "run1", ArchiveDir: "archives/run1"},
			[]abus.ContentObservation{obs("abc123", "1700000000.0", "/data/file.txt")},
		)
		if err != nil {
			t.Fatalf("ReconcileContent() error = %v", err)
		}
		// one content row and the run row
		if want := (abus.ContentCounts{New: 2}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}

		wantContent := []abus.ContentRecord{{RunName: "run1", Path: "/data/file.txt", Timestamp: 1700000000, Checksum: "abc123"}}
		if diff := cmp.Diff(wantContent, contentRows(t, c)); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
		runs, _ := c.ListRuns()
		if len(runs) != 1 || runs[0].ArchiveDir != "archives/run1" {
			t.Errorf("runs = %v", runs)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		)
		in := []abus.ContentObservation{
			obs("H1", "100.5", "/a"),
			obs("H2", "200", "/b"),
			obs(abus.ChecksumDeleted, "300", "/c"),
			obs(abus.ChecksumError, "0", "/d"),
		}
		mustReconcileContent(t, c, run1, in...)
		if got := mustReconcileContent(t, c, run1, in...); got != (abus.ContentCounts{}) {
			t.Errorf("second pass counts = %+v, want zero", got)
		}
	})

	t.Run("sentinels and unknown blobs are not stored", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"})

		got := mustReconcileContent(t, c, run1,
			obs("H1", "100", "/kept"),
			obs(abus.ChecksumError, "0", "/unreadable"),
			obs(abus.ChecksumDeleted, "150", "/deleted"),
			obs("NOBLOB", "100", "/no-blob"),
		)
		if want := (abus.ContentCounts{New: 2}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}

		wantContent := []abus.ContentRecord{{RunName: run1, Path: "/kept", Timestamp: 100, Checksum: "H1"}}
		if diff := cmp.Diff(wantContent, contentRows(t, c)); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
		wantDel := []abus.DeletionRecord{{Path: "/deleted", Timestamp: 150}}
		if diff := cmp.Diff(wantDel, deletionRows(t, c)); diff != "" {
			t.Errorf("deletions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("changed and removed rows", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		)
		mustReconcileContent(t, c, run1, obs("H1", "100", "/a"), obs("H1", "100", "/b"), obs("H1", "100", "/c"))

		got := mustReconcileContent(t, c, run1,
			obs("H2", "100", "/a"), // checksum changed
			obs("H1", "101", "/b"), // timestamp changed
			obs("H1", "100", "/d"), // new
		)
		if want := (abus.ContentCounts{Changed: 2, New: 1, Removed: 1}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
	})

	t.Run("run archive dir change counts as changed", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileContent(t, c, run1)

		got, err := c.ReconcileContent(abus.RunRecord{RunName: run1, ArchiveDir: "08/15"}, nil)
		if err != nil {
			t.Fatalf("ReconcileContent() error = %v", err)
		}
		if want := (abus.ContentCounts{Changed: 1}); got != want {
			t.Errorf("counts = %+v, want %+v", got, want)
		}
	})

	t.Run("last duplicate path wins", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		)
		mustReconcileContent(t, c, run1, obs("H1", "100", "/a"), obs("H2", "200", "/a"))

		want := []abus.ContentRecord{{RunName: run1, Path: "/a", Timestamp: 200, Checksum: "H2"}}
		if diff := cmp.Diff(want, contentRows(t, c)); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("keeps full timestamp precision and spaces in paths", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"})
		mustReconcileContent(t, c, run1, obs("H1", "1508532089.9937847", "/home/sicko/real  sick.txt"))

		want := []abus.ContentRecord{{RunName: run1, Path: "/home/sicko/real  sick.txt", Timestamp: 1508532089.9937847, Checksum: "H1"}}
		if diff := cmp.Diff(want, contentRows(t, c)); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid timestamp aborts the call", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"})

		_, err := c.ReconcileContent(abus.RunRecord{RunName: run1, ArchiveDir: "00"}, []abus.ContentObservation{
			obs("H1", "100", "/a"),
			obs("H1", "yesterday", "/b"),
		})
		var txErr *abus.CatalogTransactionError
		if !errors.As(err, &txErr) {
			t.Fatalf("ReconcileContent() error = %v, want CatalogTransactionError", err)
		}
		if rows := contentRows(t, c); len(rows) != 0 {
			t.Errorf("content after failed call = %v, want none", rows)
		}
		if runs, _ := c.ListRuns(); len(runs) != 0 {
			t.Errorf("runs after failed call = %v, want none", runs)
		}

		// the staging table was rolled back with everything else
		mustReconcileContent(t, c, run1, obs("H1", "100", "/a"))
	})
}

func TestReconcileContent_Inheritance(t *testing.T) {
	c := newTestCatalog(t)
	mustReconcileLocations(t, c,
		abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
		abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		abus.LocationRecord{Checksum: "H3", ArchiveDir: "00"},
		abus.LocationRecord{Checksum: "H4", ArchiveDir: "00"},
	)

	mustReconcileContent(t, c, run1,
		obs("H1", "1500000100.0", "/home/change_ts.txt"),
		obs("H2", "1500000200.0", "/home/change_sum_and_ts.txt"),
		obs("H4", "1500000300.0", "/home/change_neither.txt"),
	)
	later := []abus.ContentObservation{
		obs("H1", "1500100100.0", "/home/change_ts.txt"),
		obs("H3", "1500100200.0", "/home/change_sum_and_ts.txt"),
		obs("H4", "1500000300.0", "/home/change_neither.txt"),
	}
	got := mustReconcileContent(t, c, run2, later...)
	if want := (abus.ContentCounts{New: 3}); got != want {
		t.Errorf("run2 counts = %+v, want %+v", got, want)
	}
	got = mustReconcileContent(t, c, run3, later...)
	if want := (abus.ContentCounts{New: 1}); got != want {
		t.Errorf("run3 counts = %+v, want %+v (run row only)", got, want)
	}

	want := []abus.ContentRecord{
		{RunName: run1, Path: "/home/change_neither.txt", Timestamp: 1500000300, Checksum: "H4"},
		{RunName: run1, Path: "/home/change_sum_and_ts.txt", Timestamp: 1500000200, Checksum: "H2"},
		{RunName: run1, Path: "/home/change_ts.txt", Timestamp: 1500000100, Checksum: "H1"},
		{RunName: run2, Path: "/home/change_sum_and_ts.txt", Timestamp: 1500100200, Checksum: "H3"},
		{RunName: run2, Path: "/home/change_ts.txt", Timestamp: 1500100100, Checksum: "H1"},
	}
	if diff := cmp.Diff(want, contentRows(t, c)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}

	// The state as of run3 still resolves every path.
	items, err := c.ArchiveContents(abus.ArchiveQuery{})
	if err != nil {
		t.Fatalf("ArchiveContents() error = %v", err)
	}
	gotPaths := make(map[string]string)
	for _, it := range items {
		gotPaths[it.Path] = it.Checksum
	}
	wantPaths := map[string]string{
		"/home/change_neither.txt":    "H4",
		"/home/change_sum_and_ts.txt": "H3",
		"/home/change_ts.txt":         "H1",
	}
	if diff := cmp.Diff(wantPaths, gotPaths); diff != "" {
		t.Errorf("archive contents mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileContent_Deletions(t *testing.T) {
	c := newTestCatalog(t)
	mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"})

	mustReconcileContent(t, c, run1, obs("H1", "100", "/f"))
	mustReconcileContent(t, c, run2, obs(abus.ChecksumDeleted, "200", "/f"))
	if diff := cmp.Diff([]abus.DeletionRecord{{Path: "/f", Timestamp: 200}}, deletionRows(t, c)); diff != "" {
		t.Errorf("deletions mismatch (-want +got):\n%s", diff)
	}

	t.Run("file error entry clears deletion", func(t *testing.T) {
		mustReconcileContent(t, c, run3, obs(abus.ChecksumError, "0", "/f"))
		if rows := deletionRows(t, c); len(rows) != 0 {
			t.Errorf("deletions = %v, want none", rows)
		}
	})

	t.Run("reappearing file clears deletion", func(t *testing.T) {
		mustReconcileContent(t, c, run3, obs(abus.ChecksumDeleted, "300", "/f"))
		if n := len(deletionRows(t, c)); n != 1 {
			t.Fatalf("deletion rows = %d, want 1", n)
		}
		mustReconcileContent(t, c, run3, obs("H1", "400", "/f"))
		if rows := deletionRows(t, c); len(rows) != 0 {
			t.Errorf("deletions = %v, want none", rows)
		}
	})
}

func TestReconcileContent_Ordering(t *testing.T) {
	t.Run("earlier run after later run is rejected", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c, abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"})
		mustReconcileContent(t, c, run2, obs("H1", "100", "/a"))

		_, err := c.ReconcileContent(abus.RunRecord{RunName: run1, ArchiveDir: "00"}, []abus.ContentObservation{obs("H1", "100", "/b")})
		var orderErr *abus.OutOfOrderReconciliationError
		if !errors.As(err, &orderErr) {
			t.Fatalf("ReconcileContent() error = %v, want OutOfOrderReconciliationError", err)
		}
		if orderErr.Run != run1 || orderErr.Last != run2 {
			t.Errorf("error = %+v", orderErr)
		}
		if n := len(contentRows(t, c)); n != 1 {
			t.Errorf("content rows = %d, want 1", n)
		}
	})

	t.Run("same run again is allowed", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileContent(t, c, run2)
		mustReconcileContent(t, c, run2)
	})

	t.Run("location pass resets the watermark", func(t *testing.T) {
		c := newTestCatalog(t)
		mustReconcileContent(t, c, run2)
		mustReconcileLocations(t, c)
		mustReconcileContent(t, c, run1)
	})
}

func TestRemoveRuns(t *testing.T) {
	setup := func(t *testing.T) *SQLiteCatalog {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		)
		mustReconcileContent(t, c, run1, obs("H1", "100", "/a"), obs("H1", "100", "/b"))
		mustReconcileContent(t, c, run2, obs("H2", "200", "/a"))
		mustReconcileContent(t, c, run3, obs("H1", "300", "/c"))
		return c
	}

	t.Run("removes runs not retained", func(t *testing.T) {
		c := setup(t)
		removed, err := c.RemoveRuns([]string{run1, run3})
		if err != nil {
			t.Fatalf("RemoveRuns() error = %v", err)
		}
		if removed != 2 {
			t.Errorf("RemoveRuns() = %d, want 2 (one run row, one content row)", removed)
		}
		runs, _ := c.ListRuns()
		if len(runs) != 2 || runs[0].RunName != run1 || runs[1].RunName != run3 {
			t.Errorf("runs = %v", runs)
		}
		for _, r := range contentRows(t, c) {
			if r.RunName == run2 {
				t.Errorf("content of removed run survived: %+v", r)
			}
		}
	})

	t.Run("retaining everything removes nothing", func(t *testing.T) {
		c := setup(t)
		removed, err := c.RemoveRuns([]string{run1, run2, run3, "unknown"})
		if err != nil {
			t.Fatalf("RemoveRuns() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("RemoveRuns() = %d, want 0", removed)
		}
	})

	t.Run("empty retain set removes all", func(t *testing.T) {
		c := setup(t)
		removed, err := c.RemoveRuns(nil)
		if err != nil {
			t.Fatalf("RemoveRuns() error = %v", err)
		}
		if removed != 7 {
			t.Errorf("RemoveRuns() = %d, want 7", removed)
		}
		if n := len(locationRows(t, c)); n != 2 {
			t.Errorf("locations touched: %d rows, want 2", n)
		}
	})
}

func TestPruneRuns(t *testing.T) {
	// run1: /a, /b    run2: /a changed, /b inherited    run3: /c, /a and /b inherited
	setup := func(t *testing.T, extra ...abus.ContentObservation) *SQLiteCatalog {
		c := newTestCatalog(t)
		mustReconcileLocations(t, c,
			abus.LocationRecord{Checksum: "H1", ArchiveDir: "00"},
			abus.LocationRecord{Checksum: "H2", ArchiveDir: "00"},
		)
		mustReconcileContent(t, c, run1, obs("H1", "100", "/a"), obs("H1", "100", "/b"))
		mustReconcileContent(t, c, run2, append([]abus.ContentObservation{obs("H2", "200", "/a")}, extra...)...)
		mustReconcileContent(t, c, run3, obs("H1", "300", "/c"))
		return c
	}
	latest := func(t *testing.T, c *SQLiteCatalog) []*abus.RestoreItem {
		t.Helper()
		items, err := c.ArchiveContents(abus.ArchiveQuery{})
		if err != nil {
			t.Fatalf("ArchiveContents() error = %v", err)
		}
		return items
	}

	tests := []struct {
		name      string
		extra     []abus.ContentObservation
		keep      []string
		want      abus.PruneCounts
		wantRows  []abus.ContentRecord
		wantNames []string
	}{
		{
			name: "keeping only the newest run carries both inherited files",
			keep: []string{run3},
			// 3 content rows and 2 run rows of run1 and run2
			want: abus.PruneCounts{Carried: 2, Removed: 5},
			wantRows: []abus.ContentRecord{
				{RunName: run3, Path: "/a", Timestamp: 200, Checksum: "H2"},
				{RunName: run3, Path: "/b", Timestamp: 100, Checksum: "H1"},
				{RunName: run3, Path: "/c", Timestamp: 300, Checksum: "H1"},
			},
			wantNames: []string{run1, run2},
		},
		{
			name: "a carried row is inherited by the next kept run",
			keep: []string{run2, run3},
			want: abus.PruneCounts{Carried: 1, Removed: 3},
			wantRows: []abus.ContentRecord{
				{RunName: run2, Path: "/a", Timestamp: 200, Checksum: "H2"},
				{RunName: run2, Path: "/b", Timestamp: 100, Checksum: "H1"},
				{RunName: run3, Path: "/c", Timestamp: 300, Checksum: "H1"},
			},
			wantNames: []string{run1},
		},
		{
			name:  "deleted files are not carried",
			extra: []abus.ContentObservation{obs(abus.ChecksumDeleted, "250", "/b")},
			keep:  []string{run3},
			want:  abus.PruneCounts{Carried: 1, Removed: 5},
			wantRows: []abus.ContentRecord{
				{RunName: run3, Path: "/a", Timestamp: 200, Checksum: "H2"},
				{RunName: run3, Path: "/c", Timestamp: 300, Checksum: "H1"},
			},
			wantNames: []string{run1, run2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setup(t, tt.extra...)
			before := latest(t, c)

			got, err := c.PruneRuns(tt.keep)
			if err != nil {
				t.Fatalf("PruneRuns() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PruneRuns() = %+v, want %+v", got, tt.want)
			}
			if diff := cmp.Diff(tt.wantRows, contentRows(t, c)); diff != "" {
				t.Errorf("content mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(before, latest(t, c)); diff != "" {
				t.Errorf("latest contents changed by prune (-before +after):\n%s", diff)
			}

			names, err := c.PrunedRuns()
			if err != nil {
				t.Fatalf("PrunedRuns() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("PrunedRuns() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("RemoveRuns does not record pruned runs", func(t *testing.T) {
		c := setup(t)
		if _, err := c.RemoveRuns([]string{run3}); err != nil {
			t.Fatalf("RemoveRuns() error = %v", err)
		}
		names, err := c.PrunedRuns()
		if err != nil {
			t.Fatalf("PrunedRuns() error = %v", err)
		}
		if len(names) != 0 {
			t.Errorf("PrunedRuns() = %v, want none", names)
		}
	})
}
