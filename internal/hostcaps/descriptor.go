package hostcaps

import (
	"sort"
	"strings"
)

// Vendor identifies a GPU vendor family.
type Vendor string

const (
	VendorNvidia Vendor = "nvidia"
	VendorIntel  Vendor = "intel"
	VendorAMD    Vendor = "amd"
	VendorApple  Vendor = "apple"
)

// Accelerator identifies an acceleration API an engine tier can require.
type Accelerator string

const (
	AccelCUDA     Accelerator = "cuda"
	AccelOpenVINO Accelerator = "openvino"
	AccelCoreML   Accelerator = "coreml"
	// AccelNone is the plain CPU path and is always available.
	AccelNone Accelerator = "none"
)

// Descriptor captures the probed host capabilities. It is immutable once
// produced; callers receive copies of the slice and set fields.
type Descriptor struct {
	Platform     string
	Arch         string
	GPUVendors   []Vendor
	Accelerators AcceleratorSet
}

// Has reports whether the descriptor lists the given vendor.
func (d Descriptor) Has(vendor Vendor) bool {
	for _, v := range d.GPUVendors {
		if v == vendor {
			return true
		}
	}
	return false
}

// AcceleratorSet is the set of accelerator APIs usable on this host.
type AcceleratorSet map[Accelerator]struct{}

// NewAcceleratorSet builds a set from the provided accelerators, always
// including the CPU path.
func NewAcceleratorSet(accels ...Accelerator) AcceleratorSet {
	set := make(AcceleratorSet, len(accels)+1)
	set[AccelNone] = struct{}{}
	for _, a := range accels {
		set[a] = struct{}{}
	}
	return set
}

// Has reports whether the accelerator is in the set.
func (s AcceleratorSet) Has(accel Accelerator) bool {
	_, ok := s[accel]
	return ok
}

// Names returns the sorted accelerator names, for logs and API responses.
func (s AcceleratorSet) Names() []string {
	names := make([]string, 0, len(s))
	for a := range s {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// String renders the descriptor compactly for logging.
func (d Descriptor) String() string {
	vendors := make([]string, 0, len(d.GPUVendors))
	for _, v := range d.GPUVendors {
		vendors = append(vendors, string(v))
	}
	var b strings.Builder
	b.WriteString(d.Platform)
	b.WriteByte('/')
	b.WriteString(d.Arch)
	b.WriteString(" gpus=[")
	b.WriteString(strings.Join(vendors, ","))
	b.WriteString("] accel=[")
	b.WriteString(strings.Join(d.Accelerators.Names(), ","))
	b.WriteString("]")
	return b.String()
}
