// Package testutil provides testing utilities for arrowlog
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// CheckedAllocator returns an allocator that fails the test if any of its
// memory is still allocated when the test completes.
func CheckedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

// AllKindsRowType has one nullable column of every kind.
func AllKindsRowType() types.RowType {
	return types.MustRowType(
		types.NewField("b", types.Boolean()),
		types.NewField("i8", types.TinyInt()),
		types.NewField("i16", types.SmallInt()),
		types.NewField("i32", types.Int()),
		types.NewField("i64", types.BigInt()),
		types.NewField("f32", types.Float()),
		types.NewField("f64", types.Double()),
		types.NewField("s", types.String()),
		types.NewField("raw", types.Bytes()),
		types.NewField("h", types.Binary(4)),
		types.NewField("d", types.Date()),
		types.NewField("t", types.Time()),
		types.NewField("ts", types.TimestampNtz()),
		types.NewField("tsz", types.TimestampLtz()),
	)
}

// AllKindsRow builds row i of AllKindsRowType. Every seventh row is all
// nulls. Cells use the Go types RowsFromRecord returns, so rows compare
// equal after a round trip.
func AllKindsRow(i int) types.GenericRow {
	if i%7 == 6 {
		return make(types.GenericRow, 14)
	}
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Millisecond)
	return types.GenericRow{
		i%2 == 0,
		int8(i),
		int16(i * 3),
		int32(i * 7),
		int64(i) << 33,
		float32(i) / 2,
		float64(i) / 3,
		fmt.Sprintf("row-%d", i),
		[]byte{byte(i), byte(i >> 8)},
		[]byte{'h', byte(i), byte(i >> 8), '!'},
		int32(19000 + i),
		int32(i * 1000 % 86400000),
		ts,
		ts.Add(time.Hour),
	}
}

// RandomString returns a string of n printable bytes.
func RandomString(r *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
