// Package gallery stores captured photos and movies with a JSON index.
package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

const (
	indexName      = "index.json"
	thumbMaxWidth  = 320
	thumbMaxHeight = 240
)

var ErrNotFound = errors.New("gallery item not found")

type Kind string

const (
	KindPhoto Kind = "photo"
	KindMovie Kind = "movie"
)

type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	File      string    `json:"file"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Position  string    `json:"position,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Gallery is a directory of captures. Items older than the retention period
// are deleted when new ones are added; zero keeps everything.
type Gallery struct {
	dir       string
	retention time.Duration
	logger    *slog.Logger

	mu sync.Mutex
}

// Open creates dir if needed.
func Open(dir string, retention time.Duration, logger *slog.Logger) (*Gallery, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create gallery directory: %w", err)
	}
	return &Gallery{dir: dir, retention: retention, logger: logger.With("component", "gallery")}, nil
}

func (g *Gallery) Dir() string { return g.dir }

// Items lists captures, newest first.
func (g *Gallery) Items() ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load()
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	return items, nil
}

// AddPhoto stores JPEG data and a thumbnail of img.
func (g *Gallery) AddPhoto(data []byte, img image.Image, position string, takenAt time.Time) (Item, error) {
	id := uuid.NewString()
	item := Item{
		ID:        id,
		Kind:      KindPhoto,
		File:      id + ".jpg",
		Position:  position,
		Size:      int64(len(data)),
		CreatedAt: takenAt,
	}
	if err := writeAtomic(filepath.Join(g.dir, item.File), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return Item{}, err
	}
	if img != nil {
		thumb := resize.Thumbnail(thumbMaxWidth, thumbMaxHeight, img, resize.Bilinear)
		item.Thumbnail = id + ".thumb.jpg"
		if err := writeAtomic(filepath.Join(g.dir, item.Thumbnail), func(w io.Writer) error {
			return jpeg.Encode(w, thumb, &jpeg.Options{Quality: 80})
		}); err != nil {
			g.logger.Warn("Thumbnail not written", "id", id, "error", err)
			item.Thumbnail = ""
		}
	}
	return item, g.add(item)
}

// AddMovie moves a finished recording into the gallery.
func (g *Gallery) AddMovie(src string, position string) (Item, error) {
	id := uuid.NewString()
	item := Item{
		ID:        id,
		Kind:      KindMovie,
		File:      id + strings.ToLower(filepath.Ext(src)),
		Position:  position,
		CreatedAt: time.Now(),
	}
	dst := filepath.Join(g.dir, item.File)
	if err := moveFile(src, dst); err != nil {
		return Item{}, fmt.Errorf("failed to move recording: %w", err)
	}
	if info, err := os.Stat(dst); err == nil {
		item.Size = info.Size()
	}
	return item, g.add(item)
}

// Path resolves a file name from an item to its location on disk.
func (g *Gallery) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == indexName {
		return "", ErrNotFound
	}
	path := filepath.Join(g.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Delete removes an item and its files.
func (g *Gallery) Delete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	g.removeFiles(items[i])
	return g.save(slices.Delete(items, i, i+1))
}

func (g *Gallery) add(item Item) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load()
	if err != nil {
		return err
	}
	items = append(items, item)

	if g.retention > 0 {
		cutoff := time.Now().Add(-g.retention)
		items = slices.DeleteFunc(items, func(it Item) bool {
			if it.CreatedAt.After(cutoff) {
				return false
			}
			g.removeFiles(it)
			return true
		})
	}
	g.logger.Info("Capture stored", "id", item.ID, "kind", item.Kind, "file", item.File)
	return g.save(items)
}

func (g *Gallery) removeFiles(it Item) {
	for _, name := range []string{it.File, it.Thumbnail} {
		if name == "" {
			continue
		}
		if err := os.Remove(filepath.Join(g.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			g.logger.Warn("Failed to remove capture file", "file", name, "error", err)
		}
	}
}

// load reads the index. A corrupted index reads as empty and is replaced on
// the next write.
func (g *Gallery) load() ([]Item, error) {
	data, err := os.ReadFile(filepath.Join(g.dir, indexName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Item{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []Item{}, nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		g.logger.Warn("Gallery index corrupted, starting fresh", "error", err)
		return []Item{}, nil
	}
	return items, nil
}

func (g *Gallery) save(items []Item) error {
	return writeAtomic(filepath.Join(g.dir, indexName), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	})
}

// writeAtomic writes through a pending file that replaces path on success.
func writeAtomic(path string, write func(io.Writer) error) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pendingFile.Cleanup()

	if err := write(pendingFile); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different file
// systems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	return os.Remove(src)
}
