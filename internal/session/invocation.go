package session

import (
	"strconv"
	"strings"
)

// DefaultTool is the recorder binary resolved on PATH unless Options.ToolPath overrides it.
const DefaultTool = "xctrace"

// TraceExt is the suffix of the raw artifact the tool writes.
const TraceExt = ".trace"

// toolArgs renders the recorder's fixed CLI grammar:
//
//	record --template <profile> --device <udid> --output <path> --time-limit <N>ms [--attach <pid>]
//
// The grammar is versioned by the tool; the session constructs exactly this
// argument list and nothing else.
func toolArgs(profile, device, output string, timeoutMs int64, targetPID int) []string {
	args := []string{
		"record",
		"--template", profile,
		"--device", device,
		"--output", output,
		"--time-limit", strconv.FormatInt(timeoutMs, 10) + "ms",
	}
	if targetPID > 0 {
		args = append(args, "--attach", strconv.Itoa(targetPID))
	}
	return args
}

// normalizeReportPath fixes the raw artifact suffix to TraceExt.
func normalizeReportPath(p string) string {
	if strings.HasSuffix(strings.ToLower(p), TraceExt) {
		return p
	}
	return p + TraceExt
}
