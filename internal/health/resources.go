package health

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/model"
)

// Sampler reads host resource usage from procfs and the filesystem
// backing the data directory. Sampling is best effort: an unreadable
// source leaves its field at zero rather than failing the sample.
type Sampler struct {
	dataDir string

	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64

	logger *zap.Logger
}

// NewSampler creates a sampler. Disk usage is measured on the
// filesystem containing dataDir.
func NewSampler(dataDir string, logger *zap.Logger) *Sampler {
	return &Sampler{dataDir: dataDir, logger: logger}
}

// Sample returns a point-in-time resource snapshot. CPU usage is
// derived from the delta against the previous sample, so the first
// call reports zero CPU.
func (s *Sampler) Sample() model.ResourceSnapshot {
	snap := model.ResourceSnapshot{SampledAt: time.Now()}

	cpu, err := s.sampleCPU()
	if err != nil {
		s.logger.Warn("cpu sample failed", zap.Error(err))
	} else {
		snap.CPUPercent = cpu
	}

	mem, err := sampleMemory()
	if err != nil {
		s.logger.Warn("memory sample failed", zap.Error(err))
	} else {
		snap.MemoryPercent = mem
	}

	disk, err := sampleDisk(s.dataDir)
	if err != nil {
		s.logger.Warn("disk sample failed", zap.Error(err), zap.String("path", s.dataDir))
	} else {
		snap.DiskPercent = disk
	}

	return snap
}

func (s *Sampler) sampleCPU() (float64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}

	var busy, total uint64
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		var idle uint64
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				break
			}
			total += v
			// fields 3 and 4 are idle and iowait
			if i == 3 || i == 4 {
				idle += v
			}
		}
		busy = total - idle
		break
	}
	if total == 0 {
		return 0, fmt.Errorf("no aggregate cpu line in /proc/stat")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deltaBusy := busy - s.prevBusy
	deltaTotal := total - s.prevTotal
	first := s.prevTotal == 0
	s.prevBusy = busy
	s.prevTotal = total

	if first || deltaTotal == 0 {
		return 0, nil
	}
	return 100 * float64(deltaBusy) / float64(deltaTotal), nil
}

func sampleMemory() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}

	var total, available uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("MemTotal missing from /proc/meminfo")
	}
	return 100 * (1 - float64(available)/float64(total)), nil
}

func sampleDisk(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	if stat.Blocks == 0 {
		return 0, fmt.Errorf("statfs reported zero blocks for %s", path)
	}
	used := stat.Blocks - stat.Bavail
	return 100 * float64(used) / float64(stat.Blocks), nil
}
