package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// IntegrationTestSuite provides base functionality for integration tests
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	// Create temp directory for test files
	tempDir, err := os.MkdirTemp("", "arrowlog-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir

	s.T().Logf("Integration test suite started in %s", s.tempDir)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()

	// Clean up temp directory
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}

	duration := time.Since(s.startTime)
	s.T().Logf("Integration test suite completed in %v", duration)
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory path
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// CreateTempFile writes content to name under the suite directory,
// creating parent directories, and returns the path.
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, content, 0o600))
	return path
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// TestEnvironment is a per-test sandbox: a context with a deadline and
// a scratch directory. Registered cleanups run in reverse order when the
// test ends.
type TestEnvironment struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	dir     string
	cleanup []func()
}

// NewTestEnvironment creates an environment torn down by t.Cleanup.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	env := &TestEnvironment{t: t, ctx: ctx, cancel: cancel, dir: t.TempDir()}
	t.Cleanup(env.teardown)
	return env
}

// Context is cancelled when the test ends or after 30 seconds.
func (e *TestEnvironment) Context() context.Context { return e.ctx }

func (e *TestEnvironment) TempDir() string { return e.dir }

// AddCleanup registers fn to run at teardown.
func (e *TestEnvironment) AddCleanup(fn func()) {
	e.cleanup = append(e.cleanup, fn)
}

// WriteFile writes content to name under the scratch directory and
// returns the path.
func (e *TestEnvironment) WriteFile(name string, content []byte) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, content, 0o600))
	return path
}

func (e *TestEnvironment) teardown() {
	e.cancel()
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

// EventRowType is the row type of the lines written by CreateEventFiles.
func EventRowType() types.RowType {
	return types.MustRowType(
		types.NewField("id", types.BigInt().NotNull()),
		types.NewField("name", types.String()),
		types.NewField("value", types.Double()),
		types.NewField("ts", types.TimestampNtz()),
	)
}

// CreateEventFiles writes numFiles JSON-lines files of recordsPerFile
// events each. Ids run on across files.
func CreateEventFiles(t *testing.T, dir string, numFiles int, recordsPerFile int) []string {
	t.Helper()

	var files []string
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < numFiles; i++ {
		filename := filepath.Join(dir, fmt.Sprintf("events_%d.jsonl", i))
		file, err := os.Create(filename)
		require.NoError(t, err)

		enc := gojson.NewEncoder(file)
		for j := 0; j < recordsPerFile; j++ {
			id := i*recordsPerFile + j
			event := map[string]any{
				"id":    id,
				"name":  fmt.Sprintf("Record_%d_%d", i, j),
				"value": float64(j) * 1.25,
				"ts":    base.Add(time.Duration(id) * time.Second).Format("2006-01-02T15:04:05.000000"),
			}
			if j%10 == 9 {
				event["name"] = nil
			}
			require.NoError(t, enc.Encode(event))
		}

		require.NoError(t, file.Close())
		files = append(files, filename)
	}

	return files
}

// PerformanceTest runs a timed workload and fails the test when it
// misses any of the configured targets.
type PerformanceTest struct {
	t         testing.TB
	name      string
	threshold struct {
		minThroughput float64       // records/sec
		maxLatency    time.Duration // per record
		maxMemory     int64         // heap growth in bytes
	}
}

func NewPerformanceTest(t testing.TB, name string) *PerformanceTest {
	return &PerformanceTest{t: t, name: name}
}

// WithThroughputTarget sets the minimum records per second.
func (p *PerformanceTest) WithThroughputTarget(recordsPerSec float64) *PerformanceTest {
	p.threshold.minThroughput = recordsPerSec
	return p
}

// WithLatencyTarget sets the maximum average time per record.
func (p *PerformanceTest) WithLatencyTarget(maxLatency time.Duration) *PerformanceTest {
	p.threshold.maxLatency = maxLatency
	return p
}

// WithMemoryTarget sets the maximum heap growth over the run.
func (p *PerformanceTest) WithMemoryTarget(maxBytes int64) *PerformanceTest {
	p.threshold.maxMemory = maxBytes
	return p
}

// Run executes fn, which reports how many records it processed and how
// long that took. A run with no records only checks memory.
func (p *PerformanceTest) Run(fn func() (recordsProcessed int64, duration time.Duration)) {
	p.t.Helper()

	initialMem := CaptureMemoryProfile()
	records, duration := fn()
	memoryUsed := HeapGrowth(initialMem, CaptureMemoryProfile())

	var throughput float64
	var avgLatency time.Duration
	if records > 0 {
		avgLatency = duration / time.Duration(records)
		if duration > 0 {
			throughput = float64(records) / duration.Seconds()
		}
	}

	p.t.Logf("%s: %d records in %v, %.0f records/sec, %v/record, heap %s",
		p.name, records, duration, throughput, avgLatency, formatBytes(memoryUsed))

	if records > 0 && duration > 0 && p.threshold.minThroughput > 0 && throughput < p.threshold.minThroughput {
		p.t.Errorf("%s: throughput %.0f records/sec below target %.0f",
			p.name, throughput, p.threshold.minThroughput)
	}
	if p.threshold.maxLatency > 0 && avgLatency > p.threshold.maxLatency {
		p.t.Errorf("%s: latency %v per record exceeds target %v", p.name, avgLatency, p.threshold.maxLatency)
	}
	if p.threshold.maxMemory > 0 && memoryUsed > p.threshold.maxMemory {
		p.t.Errorf("%s: heap growth %s exceeds target %s",
			p.name, formatBytes(memoryUsed), formatBytes(p.threshold.maxMemory))
	}
}

// HeapGrowth is the change in allocated heap between two profiles. It is
// negative when a collection ran in between.
func HeapGrowth(before, after *MemoryProfile) int64 {
	return int64(after.AllocBytes) - int64(before.AllocBytes)
}

// MemoryProfile captures memory statistics
type MemoryProfile struct {
	AllocBytes uint64
	TotalAlloc uint64
	Sys        uint64
	Mallocs    uint64
	Frees      uint64
	HeapAlloc  uint64
	HeapSys    uint64
	HeapInuse  uint64
	StackInuse uint64
}

// CaptureMemoryProfile captures current memory profile
func CaptureMemoryProfile() *MemoryProfile {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &MemoryProfile{
		AllocBytes: m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		Mallocs:    m.Mallocs,
		Frees:      m.Frees,
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		HeapInuse:  m.HeapInuse,
		StackInuse: m.StackInuse,
	}
}

// formatBytes formats bytes into human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + formatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
