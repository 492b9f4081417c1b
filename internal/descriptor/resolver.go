package descriptor

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"projsync/internal/fsutil"
	"projsync/internal/logging"
	"projsync/internal/metrics"
)

// DefaultExtensions are the descriptor file extensions recognised when
// ResolverOptions.Extensions is empty.
var DefaultExtensions = []string{
	".proj",
	".csproj",
	".vbproj",
	".fsproj",
	".njsproj",
	".shproj",
	".sqlproj",
	".vcxproj",
}

type ResolverOptions struct {
	FS    FS
	Cache *Cache
	Parse ParseFunc
	// Extensions lists descriptor file extensions, dot included.
	Extensions []string
	// Root stops the ancestor walk. Empty walks to the filesystem root.
	Root    string
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Resolver finds and loads the descriptor governing a file.
type Resolver struct {
	fs         FS
	cache      *Cache
	parse      ParseFunc
	extensions map[string]struct{}
	root       string
	logger     *logging.Logger
	metrics    *metrics.Registry
	inflight   singleflight.Group
}

func NewResolver(options ResolverOptions) *Resolver {
	fileSystem := options.FS
	if fileSystem == nil {
		fileSystem = OSFS{}
	}
	cache := options.Cache
	if cache == nil {
		cache = NewCache(CacheOptions{Logger: options.Logger, Metrics: options.Metrics})
	}
	parse := options.Parse
	if parse == nil {
		parse = ParseXML
	}
	extensions := options.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	extensionSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		extensionSet[normalizeExtension(ext)] = struct{}{}
	}
	root := ""
	if strings.TrimSpace(options.Root) != "" {
		root = fsutil.AbsClean(options.Root)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		fs:         fileSystem,
		cache:      cache,
		parse:      parse,
		extensions: extensionSet,
		root:       root,
		logger:     logger.Category("resolver"),
		metrics:    options.Metrics,
	}
}

func (r *Resolver) Cache() *Cache {
	return r.cache
}

// IsDescriptor reports whether path names a descriptor file by extension.
func (r *Resolver) IsDescriptor(path string) bool {
	_, ok := r.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Resolve returns the descriptor governing filePath, parsing it on a cache
// miss.
func (r *Resolver) Resolve(ctx context.Context, filePath string) (*Descriptor, error) {
	descriptorPath, err := r.Locate(filePath)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, descriptorPath)
}

// Locate walks from the directory containing filePath towards the root and
// returns the first descriptor found. When a directory holds several, the
// lexicographically smallest file name wins.
func (r *Resolver) Locate(filePath string) (string, error) {
	abs := fsutil.AbsClean(filePath)
	dir := filepath.Dir(abs)
	for {
		candidate, err := r.scan(dir)
		if err != nil {
			return "", err
		}
		if candidate != "" {
			return candidate, nil
		}
		if r.root != "" && dir == r.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", &NoDescriptorError{Path: abs}
}

func (r *Resolver) scan(dir string) (string, error) {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", nil
		}
		return "", err
	}
	names := make([]string, 0, 1)
	for _, entry := range entries {
		if entry.IsDir() || !r.IsDescriptor(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	if len(names) > 1 {
		r.logger.Debug("multiple descriptors in directory", map[string]string{
			"dir":        dir,
			"selected":   names[0],
			"candidates": strings.Join(names, ","),
		})
	}
	return filepath.Join(dir, names[0]), nil
}

// Load returns the cached descriptor at descriptorPath or parses it.
// Concurrent loads of one path share a single parse.
func (r *Resolver) Load(ctx context.Context, descriptorPath string) (*Descriptor, error) {
	key := cacheKey(descriptorPath)
	if descriptor, ok := r.cache.Get(key); ok {
		return descriptor, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	results := r.inflight.DoChan(key, func() (any, error) {
		if descriptor, ok := r.cache.peek(key); ok {
			return descriptor, nil
		}
		return r.parseDescriptor(flightCtx, key)
	})

	select {
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Descriptor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// maxParseAttempts bounds reparsing when the file keeps changing while it
// is read.
const maxParseAttempts = 3

func (r *Resolver) parseDescriptor(ctx context.Context, path string) (descriptor *Descriptor, err error) {
	_, span := startSpan(ctx, "descriptor.parse", path)
	defer func() { endSpan(span, err) }()

	for attempt := 1; ; attempt++ {
		gen := r.cache.generationOf(path)
		data, err := r.fs.ReadFile(path)
		if err != nil {
			r.metrics.IncParse(true)
			return nil, &ParseError{Path: path, Err: err}
		}
		tree, err := r.parse(data)
		if err != nil {
			r.metrics.IncParse(true)
			r.logger.Warn("descriptor parse failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil, &ParseError{Path: path, Err: err}
		}
		r.metrics.IncParse(false)
		parsed := newDescriptor(path, tree, data)
		live, stored := r.cache.putAt(path, parsed, gen)
		if stored {
			r.logger.Debug("descriptor parsed", map[string]string{"path": path})
			return live, nil
		}
		if attempt == maxParseAttempts {
			// Served uncached; writes through it are checked against the file.
			r.logger.Warn("descriptor keeps changing; not caching", map[string]string{"path": path})
			return parsed, nil
		}
		r.logger.Debug("descriptor changed while parsing; reparsing", map[string]string{"path": path})
	}
}
