package resolve_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/afero"

	"digidup/internal/catalog"
	"digidup/internal/fileutil"
	"digidup/internal/logging"
	"digidup/internal/resolve"
	"digidup/internal/testsupport"
)

const (
	albumRoot  = "/albums"
	targetRoot = "/dupes"
)

type fakeCatalog struct {
	groups    []catalog.DuplicateGroup
	members   map[string][]catalog.Image
	deletes   [][]int64
	deleteErr error
	listErr   map[string]error
	onList    func(fingerprint string)
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{members: map[string][]catalog.Image{}, listErr: map[string]error{}}
}

func (f *fakeCatalog) FindDuplicateGroups(ctx context.Context) ([]catalog.DuplicateGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.groups, nil
}

func (f *fakeCatalog) ListGroupMembers(ctx context.Context, fingerprint string) ([]catalog.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.listErr[fingerprint]; err != nil {
		return nil, err
	}
	if f.onList != nil {
		f.onList(fingerprint)
	}
	return f.members[fingerprint], nil
}

func (f *fakeCatalog) DeleteImages(ctx context.Context, ids []int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletes = append(f.deletes, slices.Clone(ids))
	return int64(len(ids)), nil
}

func (f *fakeCatalog) deletedIDs() []int64 {
	var all []int64
	for _, batch := range f.deletes {
		all = append(all, batch...)
	}
	return all
}

// addGroup registers members in keeper order and writes their files into fsys.
func (f *fakeCatalog) addGroup(t *testing.T, fsys afero.Fs, fingerprint string, members ...catalog.Image) {
	t.Helper()
	for i := range members {
		members[i].Fingerprint = fingerprint
		path, err := members[i].Path(albumRoot)
		if err != nil {
			t.Fatal(err)
		}
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fsys, path, []byte(fingerprint), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.groups = append(f.groups, catalog.DuplicateGroup{Fingerprint: fingerprint, Count: len(members)})
	f.members[fingerprint] = members
}

func newResolver(t *testing.T, mode resolve.Mode, store resolve.Catalog, fsys afero.Fs, threshold int) *resolve.Resolver {
	t.Helper()
	r, err := resolve.New(resolve.Config{
		AlbumRoot:      albumRoot,
		TargetRoot:     targetRoot,
		Mode:           mode,
		BatchThreshold: threshold,
	}, store, fsys, logging.NewNop())
	if err != nil {
		t.Fatalf("resolve.New: %v", err)
	}
	return r
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		simulate, apply bool
		want            resolve.Mode
		wantErr         bool
	}{
		{simulate: true, want: resolve.ModeSimulate},
		{apply: true, want: resolve.ModeApply},
		{wantErr: true},
		{simulate: true, apply: true, wantErr: true},
	}
	for _, tt := range tests {
		got, err := resolve.ParseMode(tt.simulate, tt.apply)
		if tt.wantErr {
			if !errors.Is(err, resolve.ErrUsage) {
				t.Errorf("ParseMode(%v, %v) error = %v, want ErrUsage", tt.simulate, tt.apply, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%v, %v) = %v, %v", tt.simulate, tt.apply, got, err)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	store := newFakeCatalog()
	valid := resolve.Config{AlbumRoot: albumRoot, TargetRoot: targetRoot, Mode: resolve.ModeApply, BatchThreshold: 1}

	cases := map[string]func(*resolve.Config){
		"missing album":  func(c *resolve.Config) { c.AlbumRoot = "" },
		"missing target": func(c *resolve.Config) { c.TargetRoot = " " },
		"missing mode":   func(c *resolve.Config) { c.Mode = 0 },
		"zero threshold": func(c *resolve.Config) { c.BatchThreshold = 0 },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		if _, err := resolve.New(cfg, store, afero.NewMemMapFs(), nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := resolve.New(valid, nil, afero.NewMemMapFs(), nil); err == nil {
		t.Error("nil catalog: expected error")
	}
}

func TestApplyMovesNonKeepersAndDeletesRows(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h1",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/2021/Trip"},
		catalog.Image{ID: 2, Name: "a copy.jpg", RelativePath: "/2021/Trip"},
		catalog.Image{ID: 3, Name: "a copy 2.jpg", RelativePath: "/Inbox"},
	)
	store.addGroup(t, fsys, "h2",
		catalog.Image{ID: 4, Name: "b.jpg", RelativePath: "/"},
		catalog.Image{ID: 5, Name: "b.jpg", RelativePath: "/Old"},
	)

	report, err := newResolver(t, resolve.ModeApply, store, fsys, resolve.DefaultBatchThreshold).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, kept := range []string{"/albums/2021/Trip/a.jpg", "/albums/b.jpg"} {
		if !exists(t, fsys, kept) {
			t.Errorf("keeper %s was moved", kept)
		}
	}
	for _, moved := range []string{"/dupes/2021/Trip/a copy.jpg", "/dupes/Inbox/a copy 2.jpg", "/dupes/Old/b.jpg"} {
		if !exists(t, fsys, moved) {
			t.Errorf("expected %s in target tree", moved)
		}
	}
	if exists(t, fsys, "/albums/Old/b.jpg") {
		t.Error("non-keeper still in album tree")
	}

	if got := store.deletedIDs(); !slices.Equal(got, []int64{2, 3, 5}) {
		t.Fatalf("deleted ids = %v", got)
	}
	if len(store.deletes) != 1 {
		t.Fatalf("expected one final flush, got %d", len(store.deletes))
	}
	want := resolve.Report{Mode: "apply", Groups: 2, Kept: 2, Moved: 3, Deleted: 3, Flushes: 1}
	if report.Groups != want.Groups || report.Kept != want.Kept || report.Moved != want.Moved ||
		report.Deleted != want.Deleted || report.Flushes != want.Flushes || report.Mode != want.Mode ||
		len(report.MoveFailures) != 0 {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
}

func TestSimulateTouchesNothing(t *testing.T) {
	base := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, base, "h1",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
	)
	store.deleteErr = errors.New("simulate must not delete")

	report, err := newResolver(t, resolve.ModeSimulate, store, afero.NewReadOnlyFs(base), resolve.DefaultBatchThreshold).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !exists(t, base, "/albums/b.jpg") || exists(t, base, "/dupes") {
		t.Fatal("simulate changed the filesystem")
	}
	if report.Moved != 1 || report.Deleted != 1 || report.Flushes != 1 || report.Mode != "simulate" {
		t.Fatalf("report = %+v", report)
	}
}

func TestSimulateDoesNotNeedFiles(t *testing.T) {
	store := newFakeCatalog()
	store.groups = []catalog.DuplicateGroup{{Fingerprint: "h", Count: 2}}
	store.members["h"] = []catalog.Image{
		{ID: 1, Name: "a.jpg", RelativePath: "/", Fingerprint: "h"},
		{ID: 2, Name: "b.jpg", RelativePath: "/", Fingerprint: "h"},
	}

	report, err := newResolver(t, resolve.ModeSimulate, store, afero.NewMemMapFs(), resolve.DefaultBatchThreshold).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved != 1 || len(report.MoveFailures) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestFlushHappensOnlyAboveThreshold(t *testing.T) {
	tests := []struct {
		name        string
		nonKeepers  int
		wantBatches []int
	}{
		{name: "exactly threshold", nonKeepers: 100, wantBatches: []int{100}},
		{name: "one over threshold", nonKeepers: 101, wantBatches: []int{101}},
		{name: "two over threshold", nonKeepers: 102, wantBatches: []int{101, 1}},
		{name: "many", nonKeepers: 250, wantBatches: []int{101, 101, 48}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			store := newFakeCatalog()
			members := make([]catalog.Image, 0, tt.nonKeepers+1)
			for i := 0; i <= tt.nonKeepers; i++ {
				members = append(members, catalog.Image{ID: int64(i + 1), Name: fmt.Sprintf("IMG_%04d.jpg", i), RelativePath: "/"})
			}
			store.addGroup(t, fsys, "h", members...)

			report, err := newResolver(t, resolve.ModeApply, store, fsys, 100).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			var sizes []int
			for _, batch := range store.deletes {
				sizes = append(sizes, len(batch))
			}
			if !slices.Equal(sizes, tt.wantBatches) {
				t.Fatalf("batch sizes = %v, want %v", sizes, tt.wantBatches)
			}
			if report.Flushes != len(tt.wantBatches) || report.Deleted != int64(tt.nonKeepers) {
				t.Fatalf("report = %+v", report)
			}
		})
	}
}

func TestFailedMoveKeepsRow(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
		catalog.Image{ID: 3, Name: "c.jpg", RelativePath: "/"},
		catalog.Image{ID: 4, Name: "d.jpg", RelativePath: "/"},
	)
	if err := fsys.Remove("/albums/b.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := fsys.MkdirAll(targetRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/dupes/c.jpg", []byte("older"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := newResolver(t, resolve.ModeApply, store, fsys, resolve.DefaultBatchThreshold).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := store.deletedIDs(); !slices.Equal(got, []int64{4}) {
		t.Fatalf("deleted ids = %v, want [4]", got)
	}
	if len(report.MoveFailures) != 2 {
		t.Fatalf("move failures = %+v", report.MoveFailures)
	}
	reasons := map[int64]fileutil.Reason{}
	for _, f := range report.MoveFailures {
		reasons[f.ImageID] = f.Reason
	}
	if reasons[2] != fileutil.ReasonMissingSource || reasons[3] != fileutil.ReasonExists {
		t.Fatalf("reasons = %v", reasons)
	}
	if !exists(t, fsys, "/albums/c.jpg") {
		t.Fatal("file with colliding destination was moved")
	}
	if report.Moved != 1 {
		t.Fatalf("moved = %d", report.Moved)
	}
}

func TestEscapingAlbumPathIsSkipped(t *testing.T) {
	store := newFakeCatalog()
	store.groups = []catalog.DuplicateGroup{{Fingerprint: "h", Count: 2}}
	store.members["h"] = []catalog.Image{
		{ID: 1, Name: "a.jpg", RelativePath: "/", Fingerprint: "h"},
		{ID: 2, Name: "a.jpg", RelativePath: "/../../etc", Fingerprint: "h"},
	}

	report, err := newResolver(t, resolve.ModeSimulate, store, afero.NewMemMapFs(), resolve.DefaultBatchThreshold).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved != 0 || len(report.MoveFailures) != 1 || report.Flushes != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestDeleteFailureIsFatal(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
	)
	boom := errors.New("disk I/O error")
	store.deleteErr = boom

	_, err := newResolver(t, resolve.ModeApply, store, fsys, resolve.DefaultBatchThreshold).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected delete error, got %v", err)
	}
}

func TestCatalogErrorStillFlushesMovedRows(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h1",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
	)
	store.addGroup(t, fsys, "h2",
		catalog.Image{ID: 3, Name: "c.jpg", RelativePath: "/"},
		catalog.Image{ID: 4, Name: "d.jpg", RelativePath: "/"},
	)
	boom := errors.New("database disk image is malformed")
	store.listErr["h2"] = boom

	_, err := newResolver(t, resolve.ModeApply, store, fsys, resolve.DefaultBatchThreshold).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
	if got := store.deletedIDs(); !slices.Equal(got, []int64{2}) {
		t.Fatalf("deleted ids = %v, want [2]", got)
	}
}

func TestCancelledRunFlushesMovedRows(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h1",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
	)
	store.addGroup(t, fsys, "h2",
		catalog.Image{ID: 3, Name: "c.jpg", RelativePath: "/"},
		catalog.Image{ID: 4, Name: "d.jpg", RelativePath: "/"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onList = func(fingerprint string) {
		if fingerprint == "h1" {
			cancel()
		}
	}

	report, err := newResolver(t, resolve.ModeApply, store, fsys, resolve.DefaultBatchThreshold).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := store.deletedIDs(); !slices.Equal(got, []int64{2}) {
		t.Fatalf("deleted ids = %v, want [2]", got)
	}
	if report.Groups != 1 || !exists(t, fsys, "/albums/d.jpg") {
		t.Fatalf("second group was processed: %+v", report)
	}
}

// cancelOnRename cancels the run once the given number of renames succeed.
type cancelOnRename struct {
	afero.Fs
	after  int
	cancel context.CancelFunc
}

func (c *cancelOnRename) Rename(oldname, newname string) error {
	if err := c.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	c.after--
	if c.after == 0 {
		c.cancel()
	}
	return nil
}

func TestCancelDuringMoveStillFlushesThresholdBatch(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newFakeCatalog()
	store.addGroup(t, fsys, "h1",
		catalog.Image{ID: 1, Name: "a.jpg", RelativePath: "/"},
		catalog.Image{ID: 2, Name: "b.jpg", RelativePath: "/"},
		catalog.Image{ID: 3, Name: "c.jpg", RelativePath: "/"},
	)
	store.addGroup(t, fsys, "h2",
		catalog.Image{ID: 4, Name: "d.jpg", RelativePath: "/"},
		catalog.Image{ID: 5, Name: "e.jpg", RelativePath: "/"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wrapped := &cancelOnRename{Fs: fsys, after: 2, cancel: cancel}

	report, err := newResolver(t, resolve.ModeApply, store, wrapped, 1).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := store.deletedIDs(); !slices.Equal(got, []int64{2, 3}) {
		t.Fatalf("deleted ids = %v, want [2 3]", got)
	}
	for _, moved := range []string{"/dupes/b.jpg", "/dupes/c.jpg"} {
		if !exists(t, fsys, moved) {
			t.Fatalf("%s not moved", moved)
		}
	}
	if !exists(t, fsys, "/albums/e.jpg") || report.Deleted != 2 {
		t.Fatalf("report = %+v", report)
	}
}

func TestApplyAgainstSQLiteCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fixture := testsupport.NewCatalog(t, cfg.Paths.AlbumRoot)
	trip := fixture.AddAlbum("/2021/Trip")
	inbox := fixture.AddAlbum("/Inbox")

	data := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "seed.jpg"), 4096, 7)
	keeperID, keeperPath := fixture.AddImageFile(trip, "a.jpg", data)
	dupID, dupPath := fixture.AddImageFile(inbox, "a (1).jpg", data)
	otherID, _ := fixture.AddImageFile(inbox, "unique.jpg", data[:100])

	store := testsupport.MustOpenStore(t, fixture.Path, false)
	r, err := resolve.New(resolve.Config{
		AlbumRoot:      cfg.Paths.AlbumRoot,
		TargetRoot:     cfg.Paths.TargetRoot,
		Mode:           resolve.ModeApply,
		BatchThreshold: cfg.Resolve.BatchThreshold,
	}, store, afero.NewOsFs(), logging.NewNop())
	if err != nil {
		t.Fatalf("resolve.New: %v", err)
	}

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved != 1 || report.Deleted != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !testsupport.Exists(t, keeperPath) || testsupport.Exists(t, dupPath) {
		t.Fatal("unexpected album tree state")
	}
	if !testsupport.Exists(t, filepath.Join(cfg.Paths.TargetRoot, "Inbox", "a (1).jpg")) {
		t.Fatal("duplicate not mirrored into target tree")
	}
	if !fixture.HasImage(keeperID) || fixture.HasImage(dupID) || !fixture.HasImage(otherID) {
		t.Fatal("unexpected catalog state")
	}
}
