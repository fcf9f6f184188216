package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/module"
)

// LifecycleSymbol is the exported symbol a plugin artifact must provide.
// It must be a module.Module or a pointer to one.
const LifecycleSymbol = "Lifecycle"

// BuiltinScheme marks entry URLs that resolve against the in-process
// registry instead of a downloadable artifact.
const BuiltinScheme = "builtin"

const maxArtifactSize = 64 << 20 // 64MB

// Resolver turns a manifest entry URL into a live module implementation.
type Resolver interface {
	Resolve(ctx context.Context, entry string) (module.Module, error)
}

// BuiltinRegistry resolves builtin:// entries to factories registered at
// process start. It is how first-party modules ship inside the shell
// binary without an artifact download.
type BuiltinRegistry struct {
	mu        sync.RWMutex
	factories map[string]func() module.Module
}

func NewBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{factories: make(map[string]func() module.Module)}
}

// Register binds a factory to a name. Entry URLs of the form
// builtin://<name> resolve through it. Later registrations replace
// earlier ones.
func (r *BuiltinRegistry) Register(name string, factory func() module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

func (r *BuiltinRegistry) Resolve(_ context.Context, entry string) (module.Module, error) {
	u, err := url.Parse(entry)
	if err != nil {
		return nil, fmt.Errorf("invalid builtin entry %q: %w", entry, err)
	}
	name := u.Host
	if name == "" {
		name = strings.TrimPrefix(u.Path, "/")
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no builtin module registered as %q", name)
	}
	return factory(), nil
}

// PluginResolver loads module code from Go plugin artifacts. Local paths
// open directly; http(s) entries download into a scratch directory first.
// Plugins cannot be unloaded, so a resolved handle stays valid for the
// life of the process.
type PluginResolver struct {
	dir    string
	client *http.Client
	logger *logging.Logger
}

func NewPluginResolver(dir string, timeout time.Duration, logger *logging.Logger) *PluginResolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PluginResolver{
		dir:    dir,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *PluginResolver) Resolve(ctx context.Context, entry string) (module.Module, error) {
	path := entry
	if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
		downloaded, err := p.download(ctx, entry)
		if err != nil {
			return nil, err
		}
		path = downloaded
	}

	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin %s: %w", path, err)
	}
	sym, err := plug.Lookup(LifecycleSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}
	switch v := sym.(type) {
	case module.Module:
		return v, nil
	case *module.Module:
		if *v == nil {
			return nil, fmt.Errorf("plugin %s: symbol %s is nil", path, LifecycleSymbol)
		}
		return *v, nil
	default:
		return nil, fmt.Errorf("plugin %s: symbol %s has type %T, want module.Module", path, LifecycleSymbol, sym)
	}
}

func (p *PluginResolver) download(ctx context.Context, entry string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry, nil)
	if err != nil {
		return "", fmt.Errorf("invalid entry URL %q: %w", entry, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch artifact %s: %w", entry, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch artifact %s: status %d", entry, resp.StatusCode)
	}

	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(p.dir, uuid.NewString()+".so")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	_, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxArtifactSize))
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write artifact %s: %w", entry, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write artifact %s: %w", entry, closeErr)
	}

	p.logger.Debug(ctx, "module artifact downloaded",
		zap.String("entry", entry),
		zap.String("path", path),
	)
	return path, nil
}

// MultiResolver dispatches on the entry URL scheme: builtin:// entries go
// to the registry, everything else to the plugin resolver.
type MultiResolver struct {
	builtin *BuiltinRegistry
	plugins *PluginResolver
}

func NewMultiResolver(builtin *BuiltinRegistry, plugins *PluginResolver) *MultiResolver {
	return &MultiResolver{builtin: builtin, plugins: plugins}
}

func (m *MultiResolver) Resolve(ctx context.Context, entry string) (module.Module, error) {
	if strings.HasPrefix(entry, BuiltinScheme+"://") {
		return m.builtin.Resolve(ctx, entry)
	}
	return m.plugins.Resolve(ctx, entry)
}
