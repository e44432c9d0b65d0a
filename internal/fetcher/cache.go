package fetcher

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache keeps downloaded files in a directory and reuses copies younger
// than its TTL. Stale copies that carry an ETag are revalidated with a
// conditional GET instead of being downloaded again.
type Cache struct {
	fetcher Fetcher
	dir     string
	ttl     time.Duration
	now     func() time.Time
}

// NewCache returns a Cache storing files under dir.
func NewCache(f Fetcher, dir string, ttl time.Duration) *Cache {
	return &Cache{fetcher: f, dir: dir, ttl: ttl, now: time.Now}
}

// Path returns where name is cached.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *Cache) etagPath(name string) string {
	return c.Path(name) + ".etag"
}

// Fetch returns a local path holding rawURL's content.
func (c *Cache) Fetch(ctx context.Context, rawURL, name string) (string, error) {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("file", name))
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "cache: create dir")
	}
	path := c.Path(name)

	var etag string
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if c.now().Sub(info.ModTime()) < c.ttl {
			log.Debug("cache hit", zap.Time("modified", info.ModTime()))
			return path, nil
		}
		if b, err := os.ReadFile(c.etagPath(name)); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", eris.Wrap(err, "cache: stat")
	}

	body, newETag, changed, err := c.fetcher.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return "", eris.Wrap(err, "cache: fetch")
	}
	if !changed {
		now := c.now()
		if err := os.Chtimes(path, now, now); err != nil {
			return "", eris.Wrap(err, "cache: touch")
		}
		log.Debug("cache revalidated", zap.String("etag", etag))
		return path, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeFileAtomic(path, body)
	if err != nil {
		return "", eris.Wrap(err, "cache: store")
	}
	if newETag != "" {
		if err := os.WriteFile(c.etagPath(name), []byte(newETag), 0o644); err != nil {
			log.Warn("cache: etag not saved", zap.Error(err))
		}
	} else {
		_ = os.Remove(c.etagPath(name))
	}
	log.Info("downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
	return path, nil
}

// Invalidate drops the cached copy of name so the next Fetch downloads it.
func (c *Cache) Invalidate(name string) error {
	for _, p := range []string{c.Path(name), c.etagPath(name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrap(err, "cache: invalidate")
		}
	}
	return nil
}

// writeFileAtomic copies r into a sibling temp file and renames it over
// path, so path never holds a partial download.
func writeFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
