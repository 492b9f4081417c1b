package descriptor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	otelapi "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestResolveWithoutDescriptorFails(t *testing.T) {
	f := newFixture(t)
	paths := []string{
		f.path("a.ts"),
		f.path("deep", "nested", "b.ts"),
		f.path("missing-dir", "c.png"),
	}
	for _, path := range paths {
		_, err := f.resolver.Resolve(context.Background(), path)
		if !errors.Is(err, ErrNoDescriptor) {
			t.Fatalf("expected ErrNoDescriptor for %s, got %v", path, err)
		}
		var noDescriptor *NoDescriptorError
		if !errors.As(err, &noDescriptor) {
			t.Fatalf("expected NoDescriptorError, got %T", err)
		}
		if noDescriptor.Path != path {
			t.Fatalf("expected error path %q, got %q", path, noDescriptor.Path)
		}
	}
}

func TestResolveFindsNearestAncestor(t *testing.T) {
	f := newFixture(t)
	app := writeFile(t, f.path("App.proj"), sampleDescriptor)
	lib := writeFile(t, f.path("lib", "Lib.csproj"), sampleDescriptor)

	descriptor, err := f.resolver.Resolve(context.Background(), f.path("lib", "src", "util.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if descriptor.Path() != lib {
		t.Fatalf("expected %s, got %s", lib, descriptor.Path())
	}
	if descriptor.Name() != "Lib" {
		t.Fatalf("expected display name Lib, got %q", descriptor.Name())
	}

	descriptor, err = f.resolver.Resolve(context.Background(), f.path("web", "index.html"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if descriptor.Path() != app {
		t.Fatalf("expected %s, got %s", app, descriptor.Path())
	}
}

func TestResolvePicksLexicographicallySmallestDescriptor(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("Zeta.proj"), sampleDescriptor)
	alpha := writeFile(t, f.path("Alpha.csproj"), sampleDescriptor)
	writeFile(t, f.path("notes.txt"), "not a descriptor")

	descriptor, err := f.resolver.Resolve(context.Background(), f.path("a.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if descriptor.Path() != alpha {
		t.Fatalf("expected %s, got %s", alpha, descriptor.Path())
	}
}

func TestResolveTwiceHitsCache(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.path("App.proj"), sampleDescriptor)

	first, err := f.resolver.Resolve(context.Background(), f.path("a.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := f.resolver.Resolve(context.Background(), f.path("b.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same descriptor handle")
	}
	if reads := f.fs.readCount(path); reads != 1 {
		t.Fatalf("expected 1 parse, got %d", reads)
	}
}

func TestInvalidateForcesOneFreshParse(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.path("App.proj"), sampleDescriptor)

	first, err := f.resolver.Resolve(context.Background(), f.path("a.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !f.cache.Invalidate(path) {
		t.Fatalf("expected invalidate to evict the entry")
	}
	second, err := f.resolver.Resolve(context.Background(), f.path("a.ts"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.resolver.Resolve(context.Background(), f.path("a.ts")); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first == second {
		t.Fatalf("expected a new handle after invalidation")
	}
	if reads := f.fs.readCount(path); reads != 2 {
		t.Fatalf("expected 2 parses, got %d", reads)
	}
}

func TestConcurrentResolveSharesOneParse(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.path("App.proj"), sampleDescriptor)
	f.fs.readStarted = make(chan struct{})
	f.fs.readGate = make(chan struct{})

	const callers = 8
	results := make([]*Descriptor, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index], errs[index] = f.resolver.Resolve(context.Background(), f.path("src", "a.ts"))
		}(i)
	}

	select {
	case <-f.fs.readStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first parse")
	}
	time.Sleep(20 * time.Millisecond)
	close(f.fs.readGate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different handle", i)
		}
	}
	if reads := f.fs.readCount(path); reads != 1 {
		t.Fatalf("expected 1 parse, got %d", reads)
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("App.proj"), sampleDescriptor)
	f.fs.readGate = make(chan struct{})
	defer close(f.fs.readGate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.resolver.Resolve(ctx, f.path("a.ts")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.path("App.proj"), "<Project><ItemGroup")

	_, err := f.resolver.Resolve(context.Background(), f.path("a.ts"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Path != path {
		t.Fatalf("expected error path %s, got %s", path, parseErr.Path)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("expected failed parse to leave the cache empty")
	}

	writeFile(t, path, sampleDescriptor)
	if _, err := f.resolver.Resolve(context.Background(), f.path("a.ts")); err != nil {
		t.Fatalf("expected retry to parse, got %v", err)
	}
	if reads := f.fs.readCount(path); reads != 2 {
		t.Fatalf("expected 2 reads, got %d", reads)
	}
}

func TestResolveStopsAtRoot(t *testing.T) {
	parent := t.TempDir()
	writeFile(t, filepath.Join(parent, "Outer.proj"), sampleDescriptor)
	root := filepath.Join(parent, "workspace")
	resolver := NewResolver(ResolverOptions{Root: root})

	_, err := resolver.Resolve(context.Background(), filepath.Join(root, "src", "a.ts"))
	if !errors.Is(err, ErrNoDescriptor) {
		t.Fatalf("expected walk to stop at the workspace root, got %v", err)
	}
}

func TestParseIsTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otelapi.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otelapi.SetTracerProvider(noop.NewTracerProvider())
	})

	f := newFixture(t)
	writeFile(t, f.path("App.proj"), sampleDescriptor)
	if _, err := f.resolver.Resolve(context.Background(), f.path("a.ts")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, span := range recorder.Ended() {
		if span.Name() == "descriptor.parse" {
			return
		}
	}
	t.Fatalf("expected a descriptor.parse span")
}

func TestInvalidateDuringParseForcesReparse(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.path("App.proj"), sampleDescriptor)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	resolver := NewResolver(ResolverOptions{
		FS:    f.fs,
		Cache: f.cache,
		Root:  f.dir,
		Parse: func(data []byte) (Tree, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			return ParseXML(data)
		},
	})

	type result struct {
		descriptor *Descriptor
		err        error
	}
	done := make(chan result, 1)
	go func() {
		d, err := resolver.Resolve(context.Background(), f.path("foo.ts"))
		done <- result{d, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the parse")
	}
	edited := strings.Replace(sampleDescriptor, `<Content Include="index.html" />`, `<Content Include="about.html" />`, 1)
	writeFile(t, path, edited)
	if f.cache.Invalidate(path) {
		t.Fatalf("expected nothing cached while the parse runs")
	}
	close(release)

	var got result
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolve")
	}
	if got.err != nil {
		t.Fatalf("resolve: %v", got.err)
	}
	if !HasEntry(got.descriptor, f.path("about.html")) {
		t.Fatalf("expected the descriptor parsed after the edit")
	}
	cached, ok := f.cache.Get(path)
	if !ok || cached != got.descriptor {
		t.Fatalf("expected the fresh parse to be cached")
	}
	if calls != 2 {
		t.Fatalf("expected 2 parses, got %d", calls)
	}
}
