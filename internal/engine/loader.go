package engine

import (
	"fmt"
	"log/slog"
	"os"

	"murmur/internal/hostcaps"
)

// LoadOptions carries everything a loader needs to bring up one engine tier.
type LoadOptions struct {
	// LibraryPath is the tier's prebuilt binary under the resource directory.
	LibraryPath string
	// ModelPath is the speech model the engine loads at startup.
	ModelPath string
	// Accelerator is the tier's required acceleration API.
	Accelerator hostcaps.Accelerator
}

// Loader produces a ready Engine for one accelerator variant.
type Loader func(opts LoadOptions, logger *slog.Logger) (Engine, error)

// LoaderFor returns the loader registered for the accelerator. Every tier
// shares the same logical entry points, so the variant table differs only in
// which physical artifact gets initialized.
func LoaderFor(accel hostcaps.Accelerator) (Loader, bool) {
	loader, ok := loaders[accel]
	return loader, ok
}

var loaders = map[hostcaps.Accelerator]Loader{
	hostcaps.AccelCUDA:     loadTier,
	hostcaps.AccelOpenVINO: loadTier,
	hostcaps.AccelCoreML:   loadTier,
	hostcaps.AccelNone:     loadTier,
}

func loadTier(opts LoadOptions, logger *slog.Logger) (Engine, error) {
	if opts.LibraryPath != "" {
		if _, err := os.Stat(opts.LibraryPath); err != nil {
			return nil, fmt.Errorf("tier binary %s: %w", opts.LibraryPath, err)
		}
	}
	return newNativeEngine(opts, logger)
}
