package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
)

// startProfiles starts CPU profiling into cpuFile and arranges for a heap
// profile in memFile. Empty names skip the profile. The returned function
// stops and writes both.
func startProfiles(cpuFile, memFile string) (func(), error) {
	var cpu *os.File
	if cpuFile != "" {
		f, err := os.Create(cpuFile) //nolint:gosec
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to create CPU profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profile")
		}
		cpu = f
	}

	return func() {
		if cpu != nil {
			pprof.StopCPUProfile()
			_ = cpu.Close()
			logger.Info("CPU profile written", zap.String("path", cpuFile))
		}
		if memFile == "" {
			return
		}
		f, err := os.Create(memFile) //nolint:gosec
		if err != nil {
			logger.Warn("failed to create memory profile", zap.Error(err))
			return
		}
		defer f.Close()

		runtime.GC() // up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.Warn("failed to write memory profile", zap.Error(err))
			return
		}
		logger.Info("memory profile written", zap.String("path", memFile))
	}, nil
}

// resourceUsage is the footprint of the process after a command.
type resourceUsage struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	UserCPU    float64 `json:"user_cpu_seconds"`
	SystemCPU  float64 `json:"system_cpu_seconds"`
	NumThreads int32   `json:"threads"`
}

// currentUsage samples the process. It returns nil when the platform does
// not expose the counters.
func currentUsage() *resourceUsage {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	usage := &resourceUsage{}
	if mem, err := proc.MemoryInfo(); err == nil {
		usage.RSSBytes = mem.RSS
	}
	if t, err := proc.Times(); err == nil {
		usage.UserCPU = t.User
		usage.SystemCPU = t.System
	}
	usage.NumThreads, _ = proc.NumThreads()
	return usage
}
