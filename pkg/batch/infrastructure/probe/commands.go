package probe

import (
	"fmt"
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// processPattern turns name into a pgrep pattern that cannot match the shell running the probe.
// "gem5.opt" becomes "[g]em5.opt".
func processPattern(name string) string {
	if name == "" {
		return name
	}
	switch name[0] {
	case '[', ']', '\\', '^':
		return name
	}
	return "[" + name[:1] + "]" + name[1:]
}

// probeCommand prints three lines: the process count, the load average and the core count.
// pgrep exits 1 when nothing matches, which is a valid zero.
func probeCommand(processName string) string {
	pattern := shellquote.Join(processPattern(processName))
	return strings.Join([]string{
		fmt.Sprintf(`pgrep -c -f %s -u "$(whoami)" || true`, pattern),
		`cat /proc/loadavg 2>/dev/null || uptime`,
		`nproc`,
	}, "; ")
}

// killCommand prints the process count before the kill and the number of signalled processes.
func killCommand(processName string) string {
	pattern := shellquote.Join(processPattern(processName))
	return strings.Join([]string{
		fmt.Sprintf(`pgrep -c -f %s -u "$(whoami)" || true`, pattern),
		fmt.Sprintf(`pkill -c -f %s -u "$(whoami)" || true`, pattern),
	}, "; ")
}

type probeOutput struct {
	running int
	load    [3]float64
	cores   int
}

func nonEmptyLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func parseProbeOutput(out string) (probeOutput, error) {
	var p probeOutput
	lines := nonEmptyLines(out)
	if len(lines) != 3 {
		return p, fmt.Errorf("expected 3 lines of probe output, got %d: %q", len(lines), out)
	}

	running, err := strconv.Atoi(lines[0])
	if err != nil {
		return p, fmt.Errorf("malformed process count %q: %w", lines[0], err)
	}
	load, err := parseLoad(lines[1])
	if err != nil {
		return p, err
	}
	cores, err := strconv.Atoi(lines[2])
	if err != nil {
		return p, fmt.Errorf("malformed core count %q: %w", lines[2], err)
	}
	if running < 0 || cores < 0 {
		return p, fmt.Errorf("negative probe values: running=%d cores=%d", running, cores)
	}
	p.running, p.load, p.cores = running, load, cores
	return p, nil
}

// parseLoad accepts either a /proc/loadavg line or uptime output.
func parseLoad(line string) ([3]float64, error) {
	var load [3]float64
	var fields []string
	if i := strings.Index(line, "load average"); i >= 0 {
		rest := line[i+len("load average"):]
		rest = strings.TrimLeft(rest, "s:")
		fields = strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ' ' })
	} else {
		fields = strings.Fields(line)
	}
	if len(fields) < 3 {
		return load, fmt.Errorf("malformed load average %q", line)
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || v < 0 {
			return load, fmt.Errorf("malformed load average %q", line)
		}
		load[i] = v
	}
	return load, nil
}

func parseKillOutput(out string) (before, killed int, err error) {
	lines := nonEmptyLines(out)
	if len(lines) != 2 {
		return 0, 0, fmt.Errorf("expected 2 lines of kill output, got %d: %q", len(lines), out)
	}
	if before, err = strconv.Atoi(lines[0]); err != nil {
		return 0, 0, fmt.Errorf("malformed process count %q: %w", lines[0], err)
	}
	if killed, err = strconv.Atoi(lines[1]); err != nil {
		return 0, 0, fmt.Errorf("malformed kill count %q: %w", lines[1], err)
	}
	return before, killed, nil
}
