// Package engine executes a pre-computed folder comparison tree against the
// real filesystems: a three-pass scheduler, a multi-goroutine work dispatcher
// with per-device parallelism and work stealing, move-conflict resolution,
// policy-dispatched deletion and a main/worker message protocol for retry
// prompts, status updates and statistics.
package engine

// Response is the user's answer to an error prompt.
type Response uint8

const (
	ResponseIgnore Response = iota
	ResponseRetry
)

var responseNames = []string{"Ignore", "Retry"}

func (r Response) String() string { return responseNames[r] }

// ProgressReporter is the front-end callback surface. All methods are invoked
// from the orchestrator's goroutine only. A non-nil error return aborts the
// sync.
type ProgressReporter interface {
	// InitNewPhase announces the total workload before sync begins.
	InitNewPhase(itemsTotal int, bytesTotal int64)

	// UpdateDataProcessed and UpdateDataTotal apply accumulated deltas.
	UpdateDataProcessed(itemsDelta int, bytesDelta int64)
	UpdateDataTotal(itemsDelta int, bytesDelta int64)

	// ReportStatus replaces the transient status line.
	ReportStatus(msg string) error
	// ReportInfo updates status and writes a log line.
	ReportInfo(msg string) error
	LogInfo(msg string)

	// ReportError prompts for a failed item. retryNumber counts prior
	// attempts of the same item.
	ReportError(msg string, retryNumber int) (Response, error)

	// ReportFatalError records an unrecoverable per-pair failure; the pair is
	// skipped but the run continues.
	ReportFatalError(msg string)

	// ReportWarning shows a dismissible warning; dismissed persists the
	// "don't show again" choice.
	ReportWarning(msg string, dismissed *bool) error

	RequestUIRefresh() error
	ForceUIRefresh() error
}
