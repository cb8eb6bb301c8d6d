package engine

// statReporter manages statistics for a single item of work. It is created
// with the item's expected cost; deltas reported during work flow through to
// the processed counters, and finish reconciles the totals on scope exit:
//
//   - success: total absorbs actual != expected (sparse or compressed files,
//     a subtree that diverged since comparison)
//   - failure: the already-reported deltas are added back to total, since the
//     work will be retried or was lost
//
// Callers bind finish with defer on a named error return.
type statReporter struct {
	itemsExpected int
	bytesExpected int64
	itemsReported int
	bytesReported int64
	threadIdx     int
	coord         *coordinator
}

func newStatReporter(itemsExpected int, bytesExpected int64, threadIdx int, coord *coordinator) *statReporter {
	return &statReporter{
		itemsExpected: itemsExpected,
		bytesExpected: bytesExpected,
		threadIdx:     threadIdx,
		coord:         coord,
	}
}

func (sr *statReporter) reportStatus(msg string) error {
	return sr.coord.reportStatus(msg, sr.threadIdx)
}

// reportDelta accounts completed work. Doubles as a cancellation point.
func (sr *statReporter) reportDelta(itemsDelta int, bytesDelta int64) error {
	sr.coord.updateProcessed(itemsDelta, bytesDelta)
	sr.itemsReported += itemsDelta
	sr.bytesReported += bytesDelta

	// anything above the expectation grows the total immediately, so percent
	// complete never transiently exceeds 100
	if sr.itemsReported > sr.itemsExpected {
		sr.coord.updateTotal(sr.itemsReported-sr.itemsExpected, 0)
		sr.itemsReported = sr.itemsExpected
	}
	if sr.bytesReported > sr.bytesExpected {
		sr.coord.updateTotal(0, sr.bytesReported-sr.bytesExpected)
		sr.bytesReported = sr.bytesExpected
	}

	return sr.coord.interruptionPoint()
}

// finish reconciles the item's totals; errp distinguishes failure from
// success exit.
func (sr *statReporter) finish(errp *error) {
	if errp != nil && *errp != nil {
		sr.coord.updateTotal(sr.itemsReported, sr.bytesReported)
		return
	}
	sr.coord.updateTotal(sr.itemsReported-sr.itemsExpected, sr.bytesReported-sr.bytesExpected)
}

// tryReporting runs one work unit under the retry prompt protocol: a failure
// is offered to the user, Retry re-invokes the unit, Ignore returns the error
// message as a post-hoc record. Interruptions propagate.
func (c *coordinator) tryReporting(threadIdx int, fn func() error) (ignoredMsg string, err error) {
	for retryNumber := 0; ; retryNumber++ {
		err := fn()
		if err == nil {
			return "", nil
		}
		if isInterruption(err) {
			return "", err
		}
		resp, promptErr := c.reportError(err.Error(), retryNumber, threadIdx)
		if promptErr != nil {
			return "", promptErr
		}
		if resp == ResponseIgnore {
			return err.Error(), nil
		}
	}
}
