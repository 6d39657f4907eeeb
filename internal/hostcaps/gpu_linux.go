//go:build linux

package hostcaps

import (
	"os"
	"strings"
	"time"

	"github.com/pilebones/go-udev/crawler"
)

const crawlTimeout = 5 * time.Second

// gpuVendors enumerates display-class PCI devices through the udev sysfs
// crawler. Discrete vendors are ordered ahead of integrated ones so the
// resolver tries them first.
func gpuVendors() ([]Vendor, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error)
	quit := crawler.ExistingDevices(queue, errs, nil)
	defer close(quit)
	return collectVendors(queue, errs, crawlTimeout)
}

// collectVendors reads the crawler stream until it ends or the deadline
// fires. On deadline it returns the vendors found so far and keeps
// draining in the background, so a crawler blocked mid-send can finish
// its step and observe the quit signal.
func collectVendors(queue <-chan crawler.Device, errs <-chan error, timeout time.Duration) ([]Vendor, error) {
	found := make(map[Vendor]struct{})
	deadline := time.After(timeout)
	for {
		select {
		case device, more := <-queue:
			if !more {
				return orderVendors(found), nil
			}
			if vendor, ok := displayVendor(device.Env); ok {
				found[vendor] = struct{}{}
			}
		case err := <-errs:
			return nil, err
		case <-deadline:
			go func() {
				for {
					select {
					case _, more := <-queue:
						if !more {
							return
						}
					case <-errs:
					}
				}
			}()
			return orderVendors(found), nil
		}
	}
}

func displayVendor(env map[string]string) (Vendor, bool) {
	if env["SUBSYSTEM"] != "pci" {
		return "", false
	}
	// PCI_CLASS 0x03xxxx is the display controller class.
	if !strings.HasPrefix(env["PCI_CLASS"], "3") {
		return "", false
	}
	id := strings.ToUpper(env["PCI_ID"])
	switch {
	case strings.HasPrefix(id, "10DE:"):
		return VendorNvidia, true
	case strings.HasPrefix(id, "1002:"):
		return VendorAMD, true
	case strings.HasPrefix(id, "8086:"):
		return VendorIntel, true
	default:
		return "", false
	}
}

func orderVendors(found map[Vendor]struct{}) []Vendor {
	ordered := make([]Vendor, 0, len(found))
	for _, vendor := range []Vendor{VendorNvidia, VendorAMD, VendorIntel} {
		if _, ok := found[vendor]; ok {
			ordered = append(ordered, vendor)
		}
	}
	return ordered
}

func cudaRuntimePresent() bool {
	_, err := os.Stat("/proc/driver/nvidia/version")
	return err == nil
}
