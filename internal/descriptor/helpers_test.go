package descriptor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const sampleDescriptor = `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <!-- sources -->
  <PropertyGroup>
    <Name>App</Name>
    <Check Condition="'$(Configuration)' == 'Debug'">true</Check>
  </PropertyGroup>
  <ItemGroup>
    <TypeScriptCompile Include="app.ts" />
    <TypeScriptCompile Include="lib\util.ts" />
  </ItemGroup>
  <ItemGroup>
    <Content Include="index.html" />
  </ItemGroup>
</Project>
`

var scriptRule = ByExtension(map[string]string{
	"*":   "Content",
	".ts": "TypeScriptCompile",
}, "")

// countingFS wraps the OS filesystem, counting reads and optionally failing
// writes or holding reads until released.
type countingFS struct {
	OSFS

	mu       sync.Mutex
	reads    map[string]int
	writes   int
	writeErr error

	readStarted chan struct{}
	readGate    chan struct{}
	startOnce   sync.Once
}

func newCountingFS() *countingFS {
	return &countingFS{reads: make(map[string]int)}
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.mu.Lock()
	c.reads[name]++
	started, gate := c.readStarted, c.readGate
	c.mu.Unlock()

	if started != nil {
		c.startOnce.Do(func() { close(started) })
	}
	if gate != nil {
		<-gate
	}
	return c.OSFS.ReadFile(name)
}

func (c *countingFS) WriteFile(name string, data []byte) error {
	c.mu.Lock()
	c.writes++
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.OSFS.WriteFile(name, data)
}

func (c *countingFS) readCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[name]
}

func (c *countingFS) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func writeFile(t *testing.T, path, contents string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

type fixture struct {
	dir       string
	fs        *countingFS
	cache     *Cache
	resolver  *Resolver
	persister *Persister
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fileSystem := newCountingFS()
	cache := NewCache(CacheOptions{})
	return &fixture{
		dir:   dir,
		fs:    fileSystem,
		cache: cache,
		resolver: NewResolver(ResolverOptions{
			FS:    fileSystem,
			Cache: cache,
			Root:  dir,
		}),
		persister: NewPersister(PersisterOptions{FS: fileSystem, Cache: cache}),
	}
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.dir}, parts...)...)
}
