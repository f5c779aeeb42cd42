package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"royalty/internal/daemonctl"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func renderSnapshot(out io.Writer, snapshot *daemonctl.Snapshot, colorize bool) {
	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range snapshot.Checks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}

	sync := snapshot.Status.Sync
	if snapshot.Status.Running && sync.RunID != "" {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Sync", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine("Run", statusInfo, sync.RunID, colorize))
		if sync.CurrentMonth != "" {
			fmt.Fprintln(out, renderStatusLine("Current month", statusInfo, sync.CurrentMonth, colorize))
		}
		fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d/%d", sync.Processed, sync.Units), colorize))
		if len(sync.FailedMonths) > 0 {
			fmt.Fprintln(out, renderStatusLine("Failed months", statusWarn, strings.Join(sync.FailedMonths, ", "), colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Store", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(snapshot.Status.Partitions) == 0 {
		fmt.Fprintln(out, "Store is empty")
		return
	}
	rows := make([][]string, 0, len(snapshot.Status.Partitions))
	for _, p := range snapshot.Status.Partitions {
		rows = append(rows, []string{p.Partition, formatAmount(p.RecordCount), formatAmount(p.TotalSum)})
	}
	fmt.Fprint(out, renderTable([]string{"Partition", "Records", "Total"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	fmt.Fprintln(out)
}
