// Package boundary validates folder access tokens against the permitted root.
//
// A token is never trusted as stored: every use resolves its path, follows
// symlinks, and checks containment again. A token that escapes is deleted.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tidy-go/internal/tidy"
)

// Guard grants, validates and revokes access tokens.
type Guard struct {
	root   string
	store  tidy.TokenStore
	clock  tidy.Clock
	logger tidy.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewGuard creates a Guard permitting folders under root.
func NewGuard(root string, store tidy.TokenStore, clock tidy.Clock, logger tidy.Logger) *Guard {
	return &Guard{
		root:   root,
		store:  store,
		clock:  clock,
		logger: logger,
		locks:  make(map[string]*sync.RWMutex),
	}
}

// Root returns the configured root, unresolved.
func (g *Guard) Root() string {
	return g.root
}

func (g *Guard) keyLock(key string) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		g.locks[key] = l
	}
	return l
}

func (g *Guard) resolvedRoot() (string, error) {
	abs, err := filepath.Abs(g.root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return resolved, nil
}

// within reports whether path is root or below it. Both must be resolved.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve turns a stored path into a resolved directory under root.
func resolve(root, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		// A dangling link can still point outside; judge where it leads.
		target, err := followExisting(abs)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", abs, err)
		}
		if !within(root, target) {
			return target, errEscape
		}
		return "", fmt.Errorf("%w: %s", ErrDestinationMissing, abs)
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", abs, err)
	}

	if !within(root, resolved) {
		return resolved, errEscape
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, resolved)
	}
	return resolved, nil
}

var errEscape = errors.New("path escapes root")

const maxLinkHops = 40

// followExisting resolves the symlinks of an absolute path one component at
// a time. Unlike filepath.EvalSymlinks it tolerates a missing tail, returning
// the resolved prefix joined with the components that do not exist yet.
func followExisting(abs string) (string, error) {
	vol := filepath.VolumeName(abs)
	resolved := vol + string(filepath.Separator)
	rest := splitPath(abs[len(vol):])
	hops := 0

	for i := 0; i < len(rest); i++ {
		next := filepath.Join(resolved, rest[i])
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.Join(append([]string{next}, rest[i+1:]...)...), nil
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		if hops++; hops > maxLinkHops {
			return "", fmt.Errorf("too many links at %s", next)
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(resolved, link)
		}
		vol = filepath.VolumeName(link)
		resolved = vol + string(filepath.Separator)
		rest = append(splitPath(link[len(vol):]), rest[i+1:]...)
		i = -1
	}
	return resolved, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(filepath.Clean(p), string(filepath.Separator)) {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

// Grant stores a token for path under key after checking it lies inside the root.
// An existing token with the same key is replaced.
func (g *Guard) Grant(ctx context.Context, key, displayName, path string) (*tidy.AccessToken, error) {
	if key == "" {
		return nil, fmt.Errorf("token key is required")
	}
	root, err := g.resolvedRoot()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	resolved, err := resolve(root, abs)
	if errors.Is(err, errEscape) {
		return nil, &BoundaryError{Key: key, Path: abs, Resolved: resolved, Root: root}
	}
	if err != nil {
		return nil, err
	}

	if displayName == "" {
		displayName = filepath.Base(resolved)
	}
	tok := &tidy.AccessToken{
		Key:         key,
		DisplayName: displayName,
		Path:        abs,
		CreatedAt:   g.clock.Now(),
	}
	data, err := encodeToken(tok)
	if err != nil {
		return nil, err
	}

	l := g.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if err := g.store.Save(ctx, key, data); err != nil {
		return nil, fmt.Errorf("saving access token %s: %w", key, err)
	}

	g.logger.Info("access granted", "key", key, "path", abs)
	return tok, nil
}

// Token loads the token for key without validating it.
func (g *Guard) Token(ctx context.Context, key string) (*tidy.AccessToken, error) {
	data, err := g.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading access token %s: %w", key, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, key)
	}
	return decodeToken(data)
}

// Validate resolves the token for key and returns its path if it is still
// inside the root. A token that escapes is deleted and a *BoundaryError returned.
func (g *Guard) Validate(ctx context.Context, key string) (string, error) {
	root, err := g.resolvedRoot()
	if err != nil {
		return "", err
	}

	l := g.keyLock(key)
	l.RLock()
	tok, err := g.Token(ctx, key)
	if err != nil {
		l.RUnlock()
		return "", err
	}
	resolved, err := resolve(root, tok.Path)
	l.RUnlock()

	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, errEscape) {
		return "", fmt.Errorf("validating access token %s: %w", key, err)
	}

	berr := &BoundaryError{Key: key, Path: tok.Path, Resolved: resolved, Root: root}
	if err := g.invalidate(ctx, tok); err != nil {
		return "", errors.Join(berr, err)
	}
	return "", berr
}

// invalidate deletes tok unless it was replaced since it was read.
func (g *Guard) invalidate(ctx context.Context, tok *tidy.AccessToken) error {
	l := g.keyLock(tok.Key)
	l.Lock()
	defer l.Unlock()

	current, err := g.Token(ctx, tok.Key)
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Path != tok.Path || !current.CreatedAt.Equal(tok.CreatedAt) {
		return nil
	}

	if err := g.store.Delete(ctx, tok.Key); err != nil {
		return fmt.Errorf("invalidating access token %s: %w", tok.Key, err)
	}
	g.logger.Warn("access token invalidated", "key", tok.Key, "path", tok.Path)
	return nil
}

// Resolve validates the token behind a destination reference.
func (g *Guard) Resolve(ctx context.Context, dest tidy.DestinationRef) (string, error) {
	return g.Validate(ctx, dest.Key)
}

// Release deletes the token for key. Missing tokens are not an error.
func (g *Guard) Release(ctx context.Context, key string) error {
	l := g.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := g.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("releasing access token %s: %w", key, err)
	}
	g.logger.Info("access released", "key", key)
	return nil
}

// List returns all stored tokens sorted by key. Tokens are not validated.
func (g *Guard) List(ctx context.Context) ([]*tidy.AccessToken, error) {
	keys, err := g.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing access tokens: %w", err)
	}

	out := make([]*tidy.AccessToken, 0, len(keys))
	for _, k := range keys {
		tok, err := g.Token(ctx, k)
		if errors.Is(err, ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
