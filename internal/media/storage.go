// Package media writes downloaded Telegram files under the site's media
// root, mirroring the layout the website serves from: articles/ for primary
// images, articles/gallery/ for gallery images, articles/videos/ for videos.
package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage writes media files below a single root directory and returns
// root-relative paths for persistence.
type Storage struct {
	root string
}

// NewStorage creates a Storage rooted at dir, creating the directory tree
func NewStorage(root string) (*Storage, error) {
	for _, sub := range []string{"articles", filepath.Join("articles", "gallery"), filepath.Join("articles", "videos")} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
	}
	return &Storage{root: root}, nil
}

// Root returns the media root directory
func (s *Storage) Root() string {
	return s.root
}

// SavePrimaryImage stores an article's main image and returns its
// root-relative path.
func (s *Storage) SavePrimaryImage(slug string, data []byte) (string, error) {
	rel := filepath.Join("articles", fmt.Sprintf("%s_0.jpg", slug))
	return rel, s.write(rel, data)
}

// SaveGalleryImage stores a gallery image by its order index and returns
// its root-relative path.
func (s *Storage) SaveGalleryImage(slug string, order int, data []byte) (string, error) {
	rel := filepath.Join("articles", "gallery", fmt.Sprintf("%s_%d.jpg", slug, order))
	return rel, s.write(rel, data)
}

// ImportVideo moves a downloaded temp file into the videos directory and
// returns its root-relative path. The temp file is consumed.
func (s *Storage) ImportVideo(tmpPath string, name string) (string, error) {
	rel := filepath.Join("articles", "videos", name)
	dst := filepath.Join(s.root, rel)

	if err := os.Rename(tmpPath, dst); err != nil {
		// Rename fails across filesystems, fall back to copy+remove.
		data, readErr := os.ReadFile(tmpPath)
		if readErr != nil {
			return "", fmt.Errorf("failed to import video: %w", err)
		}
		if writeErr := os.WriteFile(dst, data, 0o644); writeErr != nil {
			return "", fmt.Errorf("failed to import video: %w", writeErr)
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			return "", fmt.Errorf("failed to remove temp video: %w", rmErr)
		}
	}
	return rel, nil
}

func (s *Storage) write(rel string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}
