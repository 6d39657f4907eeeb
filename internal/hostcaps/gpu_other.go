//go:build !linux && !darwin

package hostcaps

func gpuVendors() ([]Vendor, error) { return nil, nil }

func cudaRuntimePresent() bool { return false }
