package resolve

import (
	"murmur/internal/hostcaps"
)

// Tier ranks a candidate within its platform's list.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierFallback  Tier = "fallback"
)

// Candidate is one compiled acceleration binary for a platform/accelerator
// combination. Strict candidates must never be substituted by a different
// accelerator family once their file is present: a strict load failure stops
// the walk instead of falling through.
type Candidate struct {
	ID          string
	Tier        Tier
	Device      string // vendor tag matched against the preference order
	Accelerator hostcaps.Accelerator
	Library     string // file name under the resource directory
	Strict      bool
}

// candidateTable is the fixed per-platform walk order, primary first.
// Keyed on "goos/goarch".
var candidateTable = map[string][]Candidate{
	"linux/amd64": {
		{ID: "linux-cuda", Tier: TierPrimary, Device: "nvidia", Accelerator: hostcaps.AccelCUDA, Library: "libmurmur-cuda.so"},
		{ID: "linux-openvino", Tier: TierPrimary, Device: "intel", Accelerator: hostcaps.AccelOpenVINO, Library: "libmurmur-openvino.so"},
		{ID: "linux-cpu", Tier: TierFallback, Device: "cpu", Accelerator: hostcaps.AccelNone, Library: "libmurmur-cpu.so"},
	},
	"linux/arm64": {
		{ID: "linux-arm64-cpu", Tier: TierFallback, Device: "cpu", Accelerator: hostcaps.AccelNone, Library: "libmurmur-cpu.so"},
	},
	"darwin/arm64": {
		// The CoreML build is the only accelerated artifact shipped for
		// Apple silicon; substituting another accelerator after a partial
		// CoreML initialization corrupts the Metal state, hence strict.
		{ID: "darwin-coreml", Tier: TierPrimary, Device: "apple", Accelerator: hostcaps.AccelCoreML, Library: "libmurmur-coreml.dylib", Strict: true},
		{ID: "darwin-cpu", Tier: TierFallback, Device: "cpu", Accelerator: hostcaps.AccelNone, Library: "libmurmur-cpu.dylib"},
	},
	"darwin/amd64": {
		{ID: "darwin-openvino", Tier: TierSecondary, Device: "intel", Accelerator: hostcaps.AccelOpenVINO, Library: "libmurmur-openvino.dylib"},
		{ID: "darwin-amd64-cpu", Tier: TierFallback, Device: "cpu", Accelerator: hostcaps.AccelNone, Library: "libmurmur-cpu.dylib"},
	},
	"windows/amd64": {
		{ID: "windows-cuda", Tier: TierPrimary, Device: "nvidia", Accelerator: hostcaps.AccelCUDA, Library: "murmur-cuda.dll"},
		{ID: "windows-openvino", Tier: TierPrimary, Device: "intel", Accelerator: hostcaps.AccelOpenVINO, Library: "murmur-openvino.dll"},
		{ID: "windows-cpu", Tier: TierFallback, Device: "cpu", Accelerator: hostcaps.AccelNone, Library: "murmur-cpu.dll"},
	},
}

// Candidates returns the platform's candidate list in its built-in default
// order, or nil when the platform is unsupported.
func Candidates(platform, arch string) []Candidate {
	list := candidateTable[platform+"/"+arch]
	out := make([]Candidate, len(list))
	copy(out, list)
	return out
}

// DefaultOrder returns the built-in device order for a platform, which an
// empty user preference falls back to.
func DefaultOrder(platform, arch string) []string {
	list := candidateTable[platform+"/"+arch]
	order := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, cand := range list {
		if _, ok := seen[cand.Device]; ok {
			continue
		}
		seen[cand.Device] = struct{}{}
		order = append(order, cand.Device)
	}
	return order
}

// reorder sorts candidates within each tier by preference index. Devices
// missing from the preference keep their table order after the preferred
// ones; preference entries naming devices absent from the table are ignored.
// Tier boundaries are never crossed, so a strict candidate cannot be promoted
// out of its required context.
func reorder(candidates []Candidate, preference []string) []Candidate {
	if len(preference) == 0 {
		return candidates
	}
	rank := make(map[string]int, len(preference))
	for i, device := range preference {
		rank[device] = i
	}

	out := make([]Candidate, 0, len(candidates))
	for start := 0; start < len(candidates); {
		end := start
		for end < len(candidates) && candidates[end].Tier == candidates[start].Tier {
			end++
		}
		tier := append([]Candidate(nil), candidates[start:end]...)
		sortTier(tier, rank)
		out = append(out, tier...)
		start = end
	}
	return out
}

func sortTier(tier []Candidate, rank map[string]int) {
	// Stable insertion keeps table order among same-rank candidates.
	for i := 1; i < len(tier); i++ {
		for j := i; j > 0 && tierRank(tier[j-1], rank) > tierRank(tier[j], rank); j-- {
			tier[j-1], tier[j] = tier[j], tier[j-1]
		}
	}
}

func tierRank(cand Candidate, rank map[string]int) int {
	if r, ok := rank[cand.Device]; ok {
		return r
	}
	return len(rank) + 1
}
