package manifest

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// CaptureEnvironment snapshots the machine the crawl ran on (spec §4.13:
// device, viewport, locale, timezone, browser name/version, CPU
// throttling, network profile if known). Grounded on the teacher's
// render/chrome config use of gopsutil/v4/mem for available-RAM sizing,
// extended with gopsutil's cpu/host packages for the rest of the
// hardware snapshot since the teacher only ever needed the memory figure.
func CaptureEnvironment(browserName, browserVersion, viewport, locale, timezone, networkProfile string, cpuThrottling float64) types.EnvironmentSnapshot {
	snap := types.EnvironmentSnapshot{
		Device:         "desktop",
		Viewport:       viewport,
		Locale:         locale,
		Timezone:       timezone,
		BrowserName:    browserName,
		BrowserVersion: browserVersion,
		CPUThrottling:  cpuThrottling,
		NetworkProfile: networkProfile,
		OS:             runtime.GOOS,
		CPUCount:       runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}
	if v, err := mem.VirtualMemory(); err == nil {
		snap.TotalMemoryBytes = v.Total
	}
	if counts, err := cpu.Counts(true); err == nil && counts > 0 {
		snap.CPUCount = counts
	}
	if info, err := host.Info(); err == nil && info.Platform != "" {
		snap.OS = info.Platform + " " + info.PlatformVersion
	}

	return snap
}
