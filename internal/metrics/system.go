package metrics

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// systemSampler wraps the gopsutil process handle used to sample this
// process's own CPU and memory usage.
type systemSampler struct {
	proc *process.Process
}

func newSystemSampler() *systemSampler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &systemSampler{}
	}
	return &systemSampler{proc: p}
}

// sample returns the process's current CPU percentage and resident
// memory in bytes. It falls back to system-wide memory stats if the
// per-process handle could not be created.
func (s *systemSampler) sample() (cpuPercent float64, memBytes uint64, err error) {
	if s.proc != nil {
		if pct, perr := s.proc.Percent(time.Second); perr == nil {
			cpuPercent = pct
		}
		if info, merr := s.proc.MemoryInfo(); merr == nil && info != nil {
			memBytes = info.RSS
			return cpuPercent, memBytes, nil
		}
	}
	vm, verr := mem.VirtualMemory()
	if verr != nil {
		return cpuPercent, 0, verr
	}
	return cpuPercent, vm.Used, nil
}
