package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// resourceStatus classifies one sampled metric against its threshold.
type resourceStatus string

const (
	resourceNormal   resourceStatus = "normal"
	resourceCritical resourceStatus = "critical"
)

// ResourceMetric is one sampled host-resource reading.
type ResourceMetric struct {
	PercentUsed float64
	Threshold   float64
	Status      resourceStatus
}

// ResourceSnapshot is the result of one sampling pass across memory,
// disk, and CPU.
type ResourceSnapshot struct {
	Memory ResourceMetric
	Disk   ResourceMetric
	CPU    ResourceMetric
}

const (
	memoryThresholdPercent = 85.0
	diskThresholdPercent   = 90.0
	cpuThresholdPercent    = 95.0
)

// resourceSampler reads host resource usage from procfs (memory, CPU)
// and the target filesystem (disk), the same signals the supervisor's
// resource-pressure handlers act on.
type resourceSampler struct {
	fs     procfs.FS
	diskOn string

	mu          sync.Mutex
	havePrevCPU bool
	prevCPU     procfs.CPUStat
	prevAt      time.Time
}

// newResourceSampler opens the default /proc mount and remembers which
// path's filesystem disk usage is sampled against (typically the log
// directory).
func newResourceSampler(diskOn string) (*resourceSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &resourceSampler{fs: fs, diskOn: diskOn}, nil
}

// sample reads current memory, disk, and CPU usage. CPU usage requires
// two samples; the first call after construction reports 0%.
func (r *resourceSampler) sample() (ResourceSnapshot, error) {
	var snap ResourceSnapshot

	mem, err := r.fs.Meminfo()
	if err != nil {
		return snap, fmt.Errorf("reading meminfo: %w", err)
	}
	snap.Memory = classify(memoryPercent(mem), memoryThresholdPercent)

	diskPercent, err := diskUsagePercent(r.diskOn)
	if err != nil {
		return snap, fmt.Errorf("reading disk usage: %w", err)
	}
	snap.Disk = classify(diskPercent, diskThresholdPercent)

	cpuPercent, err := r.cpuPercent()
	if err != nil {
		return snap, fmt.Errorf("reading cpu stat: %w", err)
	}
	snap.CPU = classify(cpuPercent, cpuThresholdPercent)

	return snap, nil
}

func classify(percent, threshold float64) ResourceMetric {
	status := resourceNormal
	if percent >= threshold {
		status = resourceCritical
	}
	return ResourceMetric{PercentUsed: percent, Threshold: threshold, Status: status}
}

// memoryPercent computes used-memory percentage from MemTotal/MemAvailable,
// the same figures `free -m` derives its "available" column from.
func memoryPercent(mem procfs.Meminfo) float64 {
	if mem.MemTotal == nil || *mem.MemTotal == 0 {
		return 0
	}
	total := float64(*mem.MemTotal)
	available := total
	if mem.MemAvailable != nil {
		available = float64(*mem.MemAvailable)
	} else if mem.MemFree != nil {
		available = float64(*mem.MemFree)
	}
	used := total - available
	if used < 0 {
		used = 0
	}
	return used / total * 100
}

// cpuPercent computes the busy fraction since the previous sample as
// 1 - idleDelta/totalDelta. The first call has no prior sample and
// reports 0.
func (r *resourceSampler) cpuPercent() (float64, error) {
	stat, err := r.fs.Stat()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := stat.CPUTotal
	now := time.Now()
	if !r.havePrevCPU {
		r.prevCPU = cur
		r.prevAt = now
		r.havePrevCPU = true
		return 0, nil
	}

	idleDelta := cur.Idle - r.prevCPU.Idle
	totalDelta := cpuTotal(cur) - cpuTotal(r.prevCPU)

	r.prevCPU = cur
	r.prevAt = now

	if totalDelta <= 0 {
		return 0, nil
	}
	busy := 1 - (idleDelta / totalDelta)
	if busy < 0 {
		busy = 0
	}
	if busy > 1 {
		busy = 1
	}
	return busy * 100, nil
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

// diskUsagePercent reports the percentage of blocks used on the
// filesystem backing path, counting blocks unavailable to unprivileged
// users (including root-reserved blocks) as used.
func diskUsagePercent(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	if stat.Blocks == 0 {
		return 0, nil
	}
	used := float64(stat.Blocks) - float64(stat.Bavail)
	return used / float64(stat.Blocks) * 100, nil
}
