package resolve_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/engine"
	"murmur/internal/hostcaps"
	"murmur/internal/resolve"
	"murmur/internal/services"
)

type fakeEngine struct {
	accel  hostcaps.Accelerator
	closed bool
}

func (f *fakeEngine) Infer(context.Context, []float32, engine.Params, engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
	return engine.Transcript{}, nil
}
func (f *fakeEngine) Describe() string { return "fake/" + string(f.accel) }
func (f *fakeEngine) Close() error     { f.closed = true; return nil }

// fakeLoads builds a loader lookup whose loads fail for the listed library
// names and counts every attempt.
type fakeLoads struct {
	failFor map[string]error
	calls   int
	last    *fakeEngine
}

func (f *fakeLoads) lookup(accel hostcaps.Accelerator) (engine.Loader, bool) {
	return func(opts engine.LoadOptions, _ *slog.Logger) (engine.Engine, error) {
		f.calls++
		if err, ok := f.failFor[filepath.Base(opts.LibraryPath)]; ok {
			return nil, err
		}
		f.last = &fakeEngine{accel: accel}
		return f.last, nil
	}, true
}

func allAccels() hostcaps.AcceleratorSet {
	return hostcaps.NewAcceleratorSet(hostcaps.AccelCUDA, hostcaps.AccelOpenVINO, hostcaps.AccelCoreML)
}

func descriptorFor(platform, arch string, accels hostcaps.AcceleratorSet) hostcaps.Descriptor {
	return hostcaps.Descriptor{Platform: platform, Arch: arch, Accelerators: accels}
}

func touchLibraries(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("binary"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newResolver(t *testing.T, dir string, loads *fakeLoads) *resolve.Resolver {
	t.Helper()
	return resolve.New(dir, filepath.Join(dir, "model.bin"), nil, resolve.WithLoader(loads.lookup))
}

func TestEmptyPreferenceMatchesDefaultOrder(t *testing.T) {
	fixtures := []struct {
		platform, arch string
		libraries      []string
	}{
		{"linux", "amd64", []string{"libmurmur-cuda.so", "libmurmur-openvino.so", "libmurmur-cpu.so"}},
		{"darwin", "arm64", []string{"libmurmur-coreml.dylib", "libmurmur-cpu.dylib"}},
		{"windows", "amd64", []string{"murmur-cuda.dll", "murmur-openvino.dll", "murmur-cpu.dll"}},
	}
	for _, fx := range fixtures {
		t.Run(fx.platform+"/"+fx.arch, func(t *testing.T) {
			desc := descriptorFor(fx.platform, fx.arch, allAccels())

			dir := t.TempDir()
			touchLibraries(t, dir, fx.libraries...)
			withEmpty := newResolver(t, dir, &fakeLoads{})
			emptyPref, err := withEmpty.Resolve(desc, nil)
			if err != nil {
				t.Fatalf("resolve with empty preference: %v", err)
			}

			dir2 := t.TempDir()
			touchLibraries(t, dir2, fx.libraries...)
			withDefault := newResolver(t, dir2, &fakeLoads{})
			defaultPref, err := withDefault.Resolve(desc, resolve.DefaultOrder(fx.platform, fx.arch))
			if err != nil {
				t.Fatalf("resolve with default preference: %v", err)
			}

			if emptyPref.Candidate.ID != defaultPref.Candidate.ID {
				t.Fatalf("empty preference chose %s, default order chose %s",
					emptyPref.Candidate.ID, defaultPref.Candidate.ID)
			}
		})
	}
}

func TestPreferenceReordersWithinTier(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cuda.so", "libmurmur-openvino.so", "libmurmur-cpu.so")
	r := newResolver(t, dir, &fakeLoads{})

	desc := descriptorFor("linux", "amd64", allAccels())
	resolved, err := r.Resolve(desc, []string{"intel", "nvidia", "cpu"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Candidate.ID != "linux-openvino" {
		t.Fatalf("expected intel preference to select linux-openvino, got %s", resolved.Candidate.ID)
	}
}

func TestCPUOnlyHostSkipsAcceleratedTiers(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cuda.so", "libmurmur-openvino.so", "libmurmur-cpu.so")
	loads := &fakeLoads{}
	r := newResolver(t, dir, loads)

	desc := descriptorFor("linux", "amd64", hostcaps.NewAcceleratorSet())
	resolved, err := r.Resolve(desc, []string{"intel", "nvidia", "cpu"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Candidate.ID != "linux-cpu" {
		t.Fatalf("expected cpu fallback, got %s", resolved.Candidate.ID)
	}
	if loads.calls != 1 {
		t.Fatalf("expected a single load attempt, got %d", loads.calls)
	}
	for _, attempt := range r.LastWalk() {
		if attempt.Candidate.ID != "linux-cpu" && attempt.Outcome != "skipped_accelerator" {
			t.Fatalf("expected accelerated tiers skipped, got %s=%s", attempt.Candidate.ID, attempt.Outcome)
		}
	}
}

func TestStrictCandidateMissingFileFallsThrough(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cpu.dylib") // coreml library absent
	r := newResolver(t, dir, &fakeLoads{})

	desc := descriptorFor("darwin", "arm64", allAccels())
	resolved, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Candidate.ID != "darwin-cpu" {
		t.Fatalf("expected fallback after missing strict file, got %s", resolved.Candidate.ID)
	}
}

func TestStrictLoadFailureStopsResolution(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-coreml.dylib", "libmurmur-cpu.dylib")
	loads := &fakeLoads{failFor: map[string]error{
		"libmurmur-coreml.dylib": errors.New("dlopen failed"),
	}}
	r := newResolver(t, dir, loads)

	desc := descriptorFor("darwin", "arm64", allAccels())
	_, err := r.Resolve(desc, nil)
	if !errors.Is(err, services.ErrStrictLoad) {
		t.Fatalf("expected strict load failure, got %v", err)
	}
	if loads.calls != 1 {
		t.Fatalf("expected walk to stop at strict candidate, got %d load attempts", loads.calls)
	}
	if r.Resolved() != nil {
		t.Fatal("failed resolution must not be memoized")
	}
}

func TestNonStrictLoadFailureContinuesWalk(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cuda.so", "libmurmur-cpu.so")
	loads := &fakeLoads{failFor: map[string]error{
		"libmurmur-cuda.so": errors.New("driver mismatch"),
	}}
	r := newResolver(t, dir, loads)

	desc := descriptorFor("linux", "amd64", allAccels())
	resolved, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Candidate.ID != "linux-cpu" {
		t.Fatalf("expected cpu after cuda load failure, got %s", resolved.Candidate.ID)
	}
}

func TestNoBinariesFailsWithoutCachingFailure(t *testing.T) {
	dir := t.TempDir()
	r := newResolver(t, dir, &fakeLoads{})
	desc := descriptorFor("linux", "amd64", allAccels())

	_, err := r.Resolve(desc, nil)
	if !errors.Is(err, services.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if r.Resolved() != nil {
		t.Fatal("failure must not be memoized")
	}

	// Binaries appearing later must make the next resolve succeed.
	touchLibraries(t, dir, "libmurmur-cpu.so")
	resolved, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatalf("resolve after adding binaries: %v", err)
	}
	if resolved.Candidate.ID != "linux-cpu" {
		t.Fatalf("unexpected candidate %s", resolved.Candidate.ID)
	}
}

func TestResolveMemoizesSuccess(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cpu.so")
	loads := &fakeLoads{}
	r := newResolver(t, dir, loads)
	desc := descriptorFor("linux", "amd64", hostcaps.NewAcceleratorSet())

	first, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected memoized resolved engine")
	}
	if loads.calls != 1 {
		t.Fatalf("expected one load, got %d", loads.calls)
	}
}

func TestInvalidateClosesAndReloads(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cpu.so")
	loads := &fakeLoads{}
	r := newResolver(t, dir, loads)
	desc := descriptorFor("linux", "amd64", hostcaps.NewAcceleratorSet())

	first, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	firstEngine := loads.last
	r.Invalidate()
	if !firstEngine.closed {
		t.Fatal("expected invalidated engine to be closed")
	}
	second, err := r.Resolve(desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected a fresh resolved engine after invalidation")
	}
	if loads.calls != 2 {
		t.Fatalf("expected reload, got %d load calls", loads.calls)
	}
}

func TestManifestPersistedOnSuccess(t *testing.T) {
	dir := t.TempDir()
	touchLibraries(t, dir, "libmurmur-cpu.so")
	r := newResolver(t, dir, &fakeLoads{})
	desc := descriptorFor("linux", "amd64", hostcaps.NewAcceleratorSet())

	if _, err := r.Resolve(desc, nil); err != nil {
		t.Fatal(err)
	}
	record, err := resolve.ReadManifest(dir)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if record.Candidate != "linux-cpu" || record.Tier != "fallback" {
		t.Fatalf("unexpected manifest %+v", record)
	}
}

func TestUnsupportedPlatformFails(t *testing.T) {
	r := newResolver(t, t.TempDir(), &fakeLoads{})
	desc := descriptorFor("plan9", "386", hostcaps.NewAcceleratorSet())
	if _, err := r.Resolve(desc, nil); !errors.Is(err, services.ErrResolution) {
		t.Fatalf("expected resolution error for unsupported platform, got %v", err)
	}
}

func TestDefaultOrderFollowsTable(t *testing.T) {
	order := resolve.DefaultOrder("linux", "amd64")
	want := []string{"nvidia", "intel", "cpu"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
