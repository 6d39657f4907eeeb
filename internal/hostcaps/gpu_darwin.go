//go:build darwin

package hostcaps

import (
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

func gpuVendors() ([]Vendor, error) {
	if runtime.GOARCH == "arm64" {
		return []Vendor{VendorApple}, nil
	}
	// Intel Macs: the CPU brand string is the cheapest signal for the
	// integrated GPU vendor; discrete AMD parts share the same metal path.
	brand, err := unix.Sysctl("machdep.cpu.brand_string")
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(brand), "intel") {
		return []Vendor{VendorIntel}, nil
	}
	return nil, nil
}

func cudaRuntimePresent() bool { return false }
