// Package volatile collects the live system state that does not exist
// as a file on disk: running processes, network interfaces and
// connections, memory/swap usage, disk usage, and basic host
// identification (C5). Each sub-probe is independent; the failure of
// one is recorded in Snapshot.Errors and that section of the snapshot is simply omitted,
// it never aborts the rest of the collection.
package volatile

// SystemInfo identifies the host and its CPU.
type SystemInfo struct {
	Hostname      string `json:"hostname,omitempty"`
	OSName        string `json:"os_name,omitempty"`
	OSVersion     string `json:"os_version,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	CPUCount      int    `json:"cpu_count"`
	CPUVendor     string `json:"cpu_vendor,omitempty"`
	CPUModel      string `json:"cpu_model,omitempty"`
	CPUMhz        float64 `json:"cpu_mhz"`
}

// ProcessInfo describes one running process at snapshot time.
type ProcessInfo struct {
	PID          int32    `json:"pid"`
	Name         string   `json:"name"`
	Cmdline      []string `json:"cmd"`
	Exe          string   `json:"exe,omitempty"`
	Status       string   `json:"status"`
	StartTime    int64    `json:"start_time"`
	CPUPercent   float64  `json:"cpu_usage"`
	MemoryRSS    uint64   `json:"memory_usage"`
	ParentPID    int32    `json:"parent_pid,omitempty"`
}

// NetworkInterface is one host network adapter.
type NetworkInterface struct {
	Name             string   `json:"name"`
	MAC              string   `json:"mac,omitempty"`
	Addresses        []string `json:"ips"`
	BytesReceived    uint64   `json:"received_bytes"`
	BytesTransmitted uint64   `json:"transmitted_bytes"`
}

// NetworkConnection is one open socket at snapshot time.
type NetworkConnection struct {
	Protocol      string `json:"protocol"`
	LocalAddress  string `json:"local_address"`
	LocalPort     uint32 `json:"local_port"`
	RemoteAddress string `json:"remote_address,omitempty"`
	RemotePort    uint32 `json:"remote_port,omitempty"`
	State         string `json:"state,omitempty"`
	ProcessID     int32  `json:"process_id,omitempty"`
}

// NetworkInfo bundles interfaces and active connections.
type NetworkInfo struct {
	Interfaces  []NetworkInterface  `json:"interfaces"`
	Connections []NetworkConnection `json:"connections"`
}

// MemoryInfo summarizes RAM and swap usage.
type MemoryInfo struct {
	TotalMemory uint64 `json:"total_memory"`
	UsedMemory  uint64 `json:"used_memory"`
	TotalSwap   uint64 `json:"total_swap"`
	UsedSwap    uint64 `json:"used_swap"`
}

// DiskInfo summarizes one mounted filesystem.
type DiskInfo struct {
	Name           string `json:"name"`
	MountPoint     string `json:"mount_point,omitempty"`
	TotalSpace     uint64 `json:"total_space"`
	AvailableSpace uint64 `json:"available_space"`
	FileSystem     string `json:"file_system,omitempty"`
}

// Snapshot is the full volatile-state collection result. Any field
// left at its zero value reflects that sub-probe's failure, not an
// empty system; Errors records which probes failed and why.
type Snapshot struct {
	SystemInfo  *SystemInfo         `json:"system_info,omitempty"`
	Processes   []ProcessInfo       `json:"processes,omitempty"`
	Network     *NetworkInfo        `json:"network,omitempty"`
	Memory      *MemoryInfo         `json:"memory,omitempty"`
	Disks       []DiskInfo          `json:"disks,omitempty"`
	Errors      map[string]string   `json:"errors,omitempty"`
}

// Summary condenses a Snapshot into the counts the collection summary
// (C10) reports, without repeating every process/connection record.
type Summary struct {
	SystemName            string `json:"system_name,omitempty"`
	OSVersion             string `json:"os_version,omitempty"`
	CPUCount              int    `json:"cpu_count"`
	TotalMemoryMB         uint64 `json:"total_memory_mb"`
	ProcessCount          int    `json:"process_count"`
	NetworkInterfaceCount int    `json:"network_interface_count"`
	DiskCount             int    `json:"disk_count"`
}

// Summarize reduces a Snapshot to its Summary form.
func Summarize(s *Snapshot) Summary {
	sum := Summary{}
	if s.SystemInfo != nil {
		sum.SystemName = s.SystemInfo.Hostname
		sum.OSVersion = s.SystemInfo.OSVersion
		sum.CPUCount = s.SystemInfo.CPUCount
	}
	if s.Memory != nil {
		sum.TotalMemoryMB = s.Memory.TotalMemory / (1024 * 1024)
	}
	sum.ProcessCount = len(s.Processes)
	if s.Network != nil {
		sum.NetworkInterfaceCount = len(s.Network.Interfaces)
	}
	sum.DiskCount = len(s.Disks)
	return sum
}
