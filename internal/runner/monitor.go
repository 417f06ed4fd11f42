package runner

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const bytesToGB = 1.0 / (1024 * 1024 * 1024)

// ResourceMonitor samples the resource usage of a running job: CPU time and
// virtual memory across the runner process and its descendants, and on-disk
// bytes beneath the processing directory. On stop it emits a summary event
// tagged with the order id. It never influences the order outcome: a failure
// to attach to the process is logged and ends the monitor, and per-sample
// errors are skipped without logging.
type ResourceMonitor struct {
	orderID       string
	pid           int32
	processingDir string
	interval      time.Duration
	events        *EventLog

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewResourceMonitor configures a monitor for one order.
func NewResourceMonitor(orderID string, pid int32, processingDir string, interval time.Duration, events *EventLog) *ResourceMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ResourceMonitor{
		orderID:       orderID,
		pid:           pid,
		processingDir: processingDir,
		interval:      interval,
		events:        events,
		stop:          make(chan struct{}),
	}
}

// Start launches the sampling loop as a background task.
func (m *ResourceMonitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop signals the loop, waits for the final sample and the summary event.
func (m *ResourceMonitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *ResourceMonitor) run() {
	defer m.wg.Done()

	m.events.Info("resources monitor running")

	proc, err := process.NewProcess(m.pid)
	if err != nil {
		m.events.Warn("resources monitor could not attach to process %d: %v", m.pid, err)
		return
	}

	start := time.Now()
	cpuTimes := map[int32][]float64{}
	var diskUsage, ramUsage []float64

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	sample := func() {
		m.sampleCPU(proc, cpuTimes)
		diskUsage = append(diskUsage, m.sampleDisk())
		ramUsage = append(ramUsage, m.sampleRAM(proc))
	}

	sample()
	for {
		select {
		case <-m.stop:
			sample()
			m.summarize(start, cpuTimes, diskUsage, ramUsage)
			return
		case <-ticker.C:
			sample()
		}
	}
}

// processTree returns the process and all its descendants.
func processTree(proc *process.Process) []*process.Process {
	tree := []*process.Process{proc}
	children, err := proc.Children()
	if err != nil {
		return tree
	}
	for _, child := range children {
		tree = append(tree, processTree(child)...)
	}
	return tree
}

func (m *ResourceMonitor) sampleCPU(proc *process.Process, cpuTimes map[int32][]float64) {
	for _, p := range processTree(proc) {
		times, err := p.Times()
		if err != nil {
			continue
		}
		cpuTimes[p.Pid] = append(cpuTimes[p.Pid], times.User+times.System)
	}
}

func (m *ResourceMonitor) sampleRAM(proc *process.Process) float64 {
	var vms float64
	for _, p := range processTree(proc) {
		info, err := p.MemoryInfo()
		if err != nil {
			continue
		}
		vms += float64(info.VMS) * bytesToGB
	}
	return vms
}

func (m *ResourceMonitor) sampleDisk() float64 {
	var total int64
	filepath.Walk(m.processingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) * bytesToGB
}

func (m *ResourceMonitor) summarize(start time.Time, cpuTimes map[int32][]float64, diskUsage, ramUsage []float64) {
	wallTime := time.Since(start).Seconds()

	var cpuTime float64
	for _, samples := range cpuTimes {
		if len(samples) > 0 {
			cpuTime += samples[len(samples)-1] - samples[0]
		}
	}

	m.events.Info("wall time: %.2f s", wallTime)
	m.events.Info("peak disk usage: %.2f Gb", peak(diskUsage))
	m.events.Info("peak RAM usage: %.2f Gb", peak(ramUsage))
	m.events.Info("total CPU time: %.2f s", cpuTime)
}

func peak(samples []float64) float64 {
	var max float64
	for _, s := range samples {
		if s > max {
			max = s
		}
	}
	return max
}
