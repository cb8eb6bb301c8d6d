package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/foldsync/foldsync/internal/engine"
)

var errAborted = errors.New("synchronization aborted by user")

// consoleReporter renders engine progress on the terminal. Error prompts are
// answered interactively on a tty; otherwise failed items are retried up to
// maxRetries and then skipped.
type consoleReporter struct {
	maxRetries  int
	autoConfirm bool
	interactive bool
	stdin       *bufio.Reader

	itemsProcessed atomic.Int64
	bytesProcessed atomic.Int64
	itemsTotal     atomic.Int64
	bytesTotal     atomic.Int64
}

func newConsoleReporter(maxRetries int, autoConfirm bool) *consoleReporter {
	return &consoleReporter{
		maxRetries:  maxRetries,
		autoConfirm: autoConfirm,
		interactive: !autoConfirm && isatty.IsTerminal(os.Stdin.Fd()),
		stdin:       bufio.NewReader(os.Stdin),
	}
}

func (r *consoleReporter) InitNewPhase(itemsTotal int, bytesTotal int64) {
	r.itemsTotal.Store(int64(itemsTotal))
	r.bytesTotal.Store(bytesTotal)
	slog.Info("synchronizing", "items", itemsTotal, "bytes", humanize.IBytes(uint64(max(bytesTotal, 0))))
}

func (r *consoleReporter) UpdateDataProcessed(itemsDelta int, bytesDelta int64) {
	r.itemsProcessed.Add(int64(itemsDelta))
	r.bytesProcessed.Add(bytesDelta)
}

func (r *consoleReporter) UpdateDataTotal(itemsDelta int, bytesDelta int64) {
	r.itemsTotal.Add(int64(itemsDelta))
	r.bytesTotal.Add(bytesDelta)
}

func (r *consoleReporter) ReportStatus(msg string) error {
	if msg != "" {
		slog.Debug("status", "msg", msg,
			"items", fmt.Sprintf("%d/%d", r.itemsProcessed.Load(), r.itemsTotal.Load()))
	}
	return nil
}

func (r *consoleReporter) ReportInfo(msg string) error {
	r.LogInfo(msg)
	return nil
}

func (r *consoleReporter) LogInfo(msg string) {
	slog.Info(msg)
}

func (r *consoleReporter) ReportError(msg string, retryNumber int) (engine.Response, error) {
	if retryNumber < r.maxRetries {
		slog.Warn("retrying", "error", msg, "attempt", retryNumber+1)
		return engine.ResponseRetry, nil
	}
	if !r.interactive {
		slog.Warn("skipping item", "error", msg)
		return engine.ResponseIgnore, nil
	}
	fmt.Fprintf(os.Stderr, "\nError: %s\n[i]gnore / [r]etry / [a]bort? ", msg)
	for {
		line, err := r.stdin.ReadString('\n')
		if err != nil {
			return engine.ResponseIgnore, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "i", "ignore", "":
			return engine.ResponseIgnore, nil
		case "r", "retry":
			return engine.ResponseRetry, nil
		case "a", "abort":
			return 0, errAborted
		}
		fmt.Fprint(os.Stderr, "[i]gnore / [r]etry / [a]bort? ")
	}
}

func (r *consoleReporter) ReportFatalError(msg string) {
	slog.Error(msg)
}

func (r *consoleReporter) ReportWarning(msg string, dismissed *bool) error {
	if *dismissed {
		return nil
	}
	slog.Warn(msg)
	if !r.interactive {
		return nil
	}
	fmt.Fprint(os.Stderr, "[c]ontinue / [a]bort / [d]on't show again? ")
	line, err := r.stdin.ReadString('\n')
	if err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "a", "abort":
		return errAborted
	case "d":
		*dismissed = true
	}
	return nil
}

func (r *consoleReporter) RequestUIRefresh() error { return nil }
func (r *consoleReporter) ForceUIRefresh() error   { return nil }

func (r *consoleReporter) printSummary() {
	slog.Info("sync complete",
		"items", fmt.Sprintf("%d/%d", r.itemsProcessed.Load(), r.itemsTotal.Load()),
		"bytes", humanize.IBytes(uint64(max(r.bytesProcessed.Load(), 0))))
}
