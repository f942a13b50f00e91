package util

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo holds information about the host system.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
}

// GetSystemInfo gathers system information.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024) // Convert to MB
	}

	return info
}

// ProcessUsage describes the resource use of the agent process itself.
type ProcessUsage struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSMB         uint64  `json:"rss_mb"`
	Goroutines    int     `json:"goroutines"`
	NumFDs        int32   `json:"num_fds,omitempty"`
	HostMemoryPct float64 `json:"host_memory_percent"`
}

// GetProcessUsage samples the current process.
func GetProcessUsage() (*ProcessUsage, error) {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}

	usage := &ProcessUsage{PID: pid, Goroutines: runtime.NumGoroutine()}

	if pct, err := p.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		usage.RSSMB = memInfo.RSS / (1024 * 1024)
	}
	if fds, err := p.NumFDs(); err == nil {
		usage.NumFDs = fds
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.HostMemoryPct = vm.UsedPercent
	}

	return usage, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
