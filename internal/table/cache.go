package table

import (
	"errors"
	"fmt"

	"github.com/crwen/ckv/internal/cache"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/vfs"
)

// Cache keeps a bounded number of SST Readers open, evicting the
// least-recently-used unpinned one when a new file needs to be opened and
// capacity is exhausted.
type Cache struct {
	fs         vfs.FS
	dir        string
	underlying *cache.Cache
}

// NewCache creates a table cache holding up to maxOpenFiles readers.
func NewCache(fs vfs.FS, dir string, maxOpenFiles int) *Cache {
	return &Cache{fs: fs, dir: dir, underlying: cache.New(maxOpenFiles)}
}

func fileKey(fileNumber uint64) []byte {
	return encoding.AppendFixed64(nil, fileNumber)
}

// Get returns a pinned Reader for fileNumber, opening it if not already
// cached. The caller must call Release when done with the handle.
func (c *Cache) Get(fileNumber uint64) (*Reader, *cache.Handle, error) {
	key := fileKey(fileNumber)
	if h, ok := c.underlying.Lookup(key); ok {
		return h.Value().(*Reader), h, nil
	}

	r, err := Open(c.fs, c.dir+"/"+FileName(fileNumber))
	if err != nil {
		return nil, nil, err
	}

	h, err := c.underlying.Insert(key, r, 1)
	if err != nil {
		if errors.Is(err, errs.ErrDuplicateInsert) {
			// Lost the race with a concurrent opener: use theirs, discard ours.
			_ = r.Close()
			if existing, ok := c.underlying.Lookup(key); ok {
				return existing.Value().(*Reader), existing, nil
			}
		}
		_ = r.Close()
		return nil, nil, fmt.Errorf("table: cache insert: %w", err)
	}
	return r, h, nil
}

// Release unpins a handle obtained from Get.
func (c *Cache) Release(h *cache.Handle) error {
	return c.underlying.Unpin(h)
}

// Evict removes fileNumber from the cache if present and unpinned (called
// once a compaction has finished consuming an input file).
func (c *Cache) Evict(fileNumber uint64) {
	c.underlying.Erase(fileKey(fileNumber))
}

// FileName returns the SST file name for the given file number.
func FileName(fileNumber uint64) string {
	return fmt.Sprintf("%06d.sst", fileNumber)
}
