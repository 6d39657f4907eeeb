package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"murmur/internal/logging"
)

// Manifest is the small diagnostic record persisted after a successful
// resolution. It is informational only; correctness never depends on it.
type Manifest struct {
	Candidate   string    `json:"candidate"`
	Tier        string    `json:"tier"`
	Accelerator string    `json:"accelerator"`
	Library     string    `json:"library"`
	LoadedAt    time.Time `json:"loaded_at"`
}

const manifestName = "resolved.json"

func (r *Resolver) writeManifest(resolved *ResolvedEngine) {
	record := Manifest{
		Candidate:   resolved.Candidate.ID,
		Tier:        string(resolved.Candidate.Tier),
		Accelerator: string(resolved.Candidate.Accelerator),
		Library:     resolved.Candidate.Library,
		LoadedAt:    resolved.LoadedAt,
	}
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(r.resourceDir, manifestName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		r.logger.Warn("failed to persist resolution manifest", logging.Error(err))
	}
}

// ReadManifest loads the last persisted resolution record, if any.
func ReadManifest(resourceDir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(resourceDir, manifestName))
	if err != nil {
		return nil, err
	}
	var record Manifest
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
