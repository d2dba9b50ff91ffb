package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest records what one completed build produced. It lands next to the
// artifacts so consumers can verify the set without re-hashing.
type Manifest struct {
	BuildID   string          `json:"build_id"`
	CreatedAt time.Time       `json:"created_at"`
	BaseSize  int64           `json:"base_size_bytes"`
	Artifacts []ManifestEntry `json:"artifacts"`
}

// ManifestEntry is one artifact line in the manifest.
type ManifestEntry struct {
	Recipe string `json:"recipe"`
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size_bytes"`
}

// WriteManifest writes the manifest atomically via temp file + rename, so a
// crashed build never leaves a half-written manifest next to good
// artifacts.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	finalPath := filepath.Join(dir, fmt.Sprintf("manifest-%s.json", m.BuildID))
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a build's manifest back.
func ReadManifest(dir, buildID string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("manifest-%s.json", buildID)))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}
