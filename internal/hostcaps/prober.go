package hostcaps

import (
	"log/slog"
	"runtime"
	"sync"

	"murmur/internal/logging"
)

var (
	mu     sync.Mutex
	cached *Descriptor
)

// Probe returns the host capability descriptor, probing hardware on the first
// call and returning the cached result afterwards. Probe never fails: any
// hardware query error yields a CPU-only descriptor.
func Probe(logger *slog.Logger) Descriptor {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		return *cached
	}

	log := logging.NewComponentLogger(logger, "hostcaps")
	desc := probeHost(log)
	cached = &desc

	log.Info("host capabilities probed",
		logging.String("platform", desc.Platform),
		logging.String("arch", desc.Arch),
		logging.Any("gpu_vendors", desc.GPUVendors),
		logging.Any("accelerators", desc.Accelerators.Names()),
	)
	return desc
}

// Invalidate drops the cached descriptor so the next Probe re-reads the host.
// Used when the resource watcher observes driver or device changes.
func Invalidate() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}

func probeHost(log *slog.Logger) Descriptor {
	desc := Descriptor{
		Platform:     runtime.GOOS,
		Arch:         runtime.GOARCH,
		Accelerators: NewAcceleratorSet(),
	}

	vendors, err := gpuVendors()
	if err != nil {
		log.Warn("gpu enumeration failed; continuing with cpu-only capabilities",
			logging.Error(err),
			logging.String(logging.FieldEventType, "gpu_probe_failed"),
			logging.String(logging.FieldImpact, "accelerated engine tiers unavailable"),
		)
		return desc
	}
	desc.GPUVendors = vendors
	desc.Accelerators = availableAccelerators(desc)
	return desc
}

func availableAccelerators(desc Descriptor) AcceleratorSet {
	var accels []Accelerator
	if desc.Has(VendorNvidia) && cudaRuntimePresent() {
		accels = append(accels, AccelCUDA)
	}
	if desc.Has(VendorIntel) {
		accels = append(accels, AccelOpenVINO)
	}
	if desc.Platform == "darwin" && desc.Arch == "arm64" {
		accels = append(accels, AccelCoreML)
	}
	return NewAcceleratorSet(accels...)
}
