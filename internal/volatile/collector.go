package volatile

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gonet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Collect runs every sub-probe and assembles a Snapshot. A sub-probe
// failure is recorded in Snapshot.Errors and leaves the corresponding
// field nil/empty rather than aborting the others.
func Collect(ctx context.Context) *Snapshot {
	snap := &Snapshot{Errors: make(map[string]string)}

	if info, err := collectSystemInfo(ctx); err != nil {
		snap.Errors["system_info"] = err.Error()
	} else {
		snap.SystemInfo = info
	}

	if procs, err := collectProcesses(ctx); err != nil {
		snap.Errors["processes"] = err.Error()
	} else {
		snap.Processes = procs
	}

	if netInfo, err := collectNetwork(ctx); err != nil {
		snap.Errors["network"] = err.Error()
	} else {
		snap.Network = netInfo
	}

	if memInfo, err := collectMemory(ctx); err != nil {
		snap.Errors["memory"] = err.Error()
	} else {
		snap.Memory = memInfo
	}

	if disks, err := collectDisks(ctx); err != nil {
		snap.Errors["disks"] = err.Error()
	} else {
		snap.Disks = disks
	}

	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}
	return snap
}

func collectSystemInfo(ctx context.Context) (*SystemInfo, error) {
	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}

	info := &SystemInfo{
		Hostname:      hostInfo.Hostname,
		OSName:        hostInfo.Platform,
		OSVersion:     hostInfo.PlatformVersion,
		KernelVersion: hostInfo.KernelVersion,
	}

	if cpuInfos, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfos) > 0 {
		info.CPUVendor = cpuInfos[0].VendorID
		info.CPUModel = cpuInfos[0].ModelName
		info.CPUMhz = cpuInfos[0].Mhz
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = count
	}

	return info, nil
}

func collectProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		createTime, _ := p.CreateTimeWithContext(ctx)
		cpuPercent, _ := p.CPUPercentWithContext(ctx)
		ppid, _ := p.PpidWithContext(ctx)

		var rss uint64
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			rss = memInfo.RSS
		}

		status := "unknown"
		if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
			status = statuses[0]
		}

		infos = append(infos, ProcessInfo{
			PID:        p.Pid,
			Name:       name,
			Cmdline:    cmdline,
			Exe:        exe,
			Status:     status,
			StartTime:  createTime,
			CPUPercent: cpuPercent,
			MemoryRSS:  rss,
			ParentPID:  ppid,
		})
	}
	return infos, nil
}

func collectNetwork(ctx context.Context) (*NetworkInfo, error) {
	ifaces, err := gonet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	counters, err := gonet.IOCountersWithContext(ctx, true)
	countersByName := make(map[string]gonet.IOCountersStat, len(counters))
	if err == nil {
		for _, c := range counters {
			countersByName[c.Name] = c
		}
	}

	info := &NetworkInfo{}
	for _, iface := range ifaces {
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
		entry := NetworkInterface{
			Name:      iface.Name,
			MAC:       iface.HardwareAddr,
			Addresses: addrs,
		}
		if c, ok := countersByName[iface.Name]; ok {
			entry.BytesReceived = c.BytesRecv
			entry.BytesTransmitted = c.BytesSent
		}
		info.Interfaces = append(info.Interfaces, entry)
	}

	conns, err := gonet.ConnectionsWithContext(ctx, "all")
	if err != nil {
		return info, fmt.Errorf("list connections: %w", err)
	}
	for _, c := range conns {
		info.Connections = append(info.Connections, NetworkConnection{
			Protocol:      connectionProtocol(c.Type),
			LocalAddress:  c.Laddr.IP,
			LocalPort:     c.Laddr.Port,
			RemoteAddress: c.Raddr.IP,
			RemotePort:    c.Raddr.Port,
			State:         c.Status,
			ProcessID:     c.Pid,
		})
	}
	return info, nil
}

func connectionProtocol(socketType uint32) string {
	// SOCK_STREAM == 1, SOCK_DGRAM == 2 on every platform gopsutil targets.
	switch socketType {
	case 1:
		return "tcp"
	case 2:
		return "udp"
	default:
		return "unknown"
	}
}

func collectMemory(ctx context.Context) (*MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	info := &MemoryInfo{TotalMemory: vm.Total, UsedMemory: vm.Used}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		info.TotalSwap = swap.Total
		info.UsedSwap = swap.Used
	}
	return info, nil
}

func collectDisks(ctx context.Context) ([]DiskInfo, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	disks := make([]DiskInfo, 0, len(partitions))
	for _, p := range partitions {
		entry := DiskInfo{
			Name:       p.Device,
			MountPoint: p.Mountpoint,
			FileSystem: p.Fstype,
		}
		if usage, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
			entry.TotalSpace = usage.Total
			entry.AvailableSpace = usage.Free
		}
		disks = append(disks, entry)
	}
	return disks, nil
}
