package hostcaps

import (
	"runtime"
	"testing"
)

func TestProbeIsCachedUntilInvalidated(t *testing.T) {
	Invalidate()
	first := Probe(nil)
	second := Probe(nil)
	if first.Platform != second.Platform || first.Arch != second.Arch {
		t.Fatalf("expected identical cached descriptors, got %v and %v", first, second)
	}
	Invalidate()
	third := Probe(nil)
	if third.Platform != runtime.GOOS {
		t.Fatalf("expected re-probe to report %s, got %s", runtime.GOOS, third.Platform)
	}
}

func TestProbeAlwaysIncludesCPUPath(t *testing.T) {
	Invalidate()
	desc := Probe(nil)
	if !desc.Accelerators.Has(AccelNone) {
		t.Fatal("cpu accelerator must always be available")
	}
}

func TestAcceleratorSetNamesSorted(t *testing.T) {
	set := NewAcceleratorSet(AccelOpenVINO, AccelCUDA)
	names := set.Names()
	want := []string{"cuda", "none", "openvino"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestAvailableAcceleratorsFollowVendors(t *testing.T) {
	cases := []struct {
		name string
		desc Descriptor
		want []Accelerator
	}{
		{
			name: "intel gpu enables openvino",
			desc: Descriptor{Platform: "linux", Arch: "amd64", GPUVendors: []Vendor{VendorIntel}},
			want: []Accelerator{AccelOpenVINO},
		},
		{
			name: "apple silicon enables coreml",
			desc: Descriptor{Platform: "darwin", Arch: "arm64", GPUVendors: []Vendor{VendorApple}},
			want: []Accelerator{AccelCoreML},
		},
		{
			name: "no gpus leaves cpu only",
			desc: Descriptor{Platform: "linux", Arch: "amd64"},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := availableAccelerators(tc.desc)
			if !set.Has(AccelNone) {
				t.Fatal("cpu path missing")
			}
			for _, accel := range tc.want {
				if !set.Has(accel) {
					t.Fatalf("expected %s in %v", accel, set.Names())
				}
			}
			if len(set) != len(tc.want)+1 {
				t.Fatalf("unexpected extra accelerators: %v", set.Names())
			}
		})
	}
}
