package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

// testReporter records everything the engine reports; ReportError answers
// from a scripted queue (Ignore when exhausted).
type testReporter struct {
	mu sync.Mutex

	itemsProcessed int
	bytesProcessed int64
	itemsTotal     int
	bytesTotal     int64

	initItems int
	initBytes int64

	statuses  []string
	logs      []string
	errors    []string
	fatals    []string
	warnings  []string
	responses []Response
}

func (r *testReporter) InitNewPhase(itemsTotal int, bytesTotal int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initItems = itemsTotal
	r.initBytes = bytesTotal
	r.itemsTotal += itemsTotal
	r.bytesTotal += bytesTotal
}

func (r *testReporter) UpdateDataProcessed(itemsDelta int, bytesDelta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsProcessed += itemsDelta
	r.bytesProcessed += bytesDelta
}

func (r *testReporter) UpdateDataTotal(itemsDelta int, bytesDelta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsTotal += itemsDelta
	r.bytesTotal += bytesDelta
}

func (r *testReporter) ReportStatus(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, msg)
	return nil
}

func (r *testReporter) ReportInfo(msg string) error {
	r.LogInfo(msg)
	return nil
}

func (r *testReporter) LogInfo(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *testReporter) ReportError(msg string, retryNumber int) (Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
	if len(r.responses) > 0 {
		resp := r.responses[0]
		r.responses = r.responses[1:]
		return resp, nil
	}
	return ResponseIgnore, nil
}

func (r *testReporter) ReportFatalError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, msg)
}

func (r *testReporter) ReportWarning(msg string, dismissed *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
	return nil
}

func (r *testReporter) RequestUIRefresh() error { return nil }
func (r *testReporter) ForceUIRefresh() error   { return nil }

func (r *testReporter) snapshot() (itemsProcessed int, bytesProcessed int64, itemsTotal int, bytesTotal int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsProcessed, r.bytesProcessed, r.itemsTotal, r.bytesTotal
}

func (r *testReporter) loggedLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

func (r *testReporter) errorPrompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func testTime() time.Time { return time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC) }

func newLocalBase(t *testing.T, left, right string) *tree.BaseFolderPair {
	t.Helper()
	return tree.NewBaseFolderPair(localfs.NewPath(left), localfs.NewPath(right), nil)
}
