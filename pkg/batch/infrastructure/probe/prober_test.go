package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

type stubExecutor struct {
	out   string
	err   error
	block bool
	cmds  []string
}

func (s *stubExecutor) Run(ctx context.Context, host, cmd string) ([]byte, error) {
	s.cmds = append(s.cmds, cmd)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(s.out), s.err
}

func (s *stubExecutor) Start(ctx context.Context, host, cmd string) error { return nil }

func TestProcessPattern(t *testing.T) {
	assert.Equal(t, "[g]em5.opt", processPattern("gem5.opt"))
	assert.Equal(t, "", processPattern(""))
	assert.Equal(t, "[x]y", processPattern("[x]y"))
}

func TestProbeCommand_QuotesPattern(t *testing.T) {
	cmd := probeCommand("gem5 opt")
	first := strings.SplitN(cmd, ";", 2)[0]
	words, err := shellquote.Split(strings.TrimSuffix(first, "|| true"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pgrep", "-c", "-f", "[g]em5 opt", "-u", "$(whoami)"}, words)
	assert.Contains(t, cmd, "nproc")
}

func TestParseLoad(t *testing.T) {
	tests := []struct {
		name string
		line string
		want [3]float64
		err  bool
	}{
		{"proc loadavg", "3.52 2.10 1.05 2/1234 5678", [3]float64{3.52, 2.10, 1.05}, false},
		{"linux uptime", "10:01:02 up 3 days,  2:03,  4 users,  load average: 12.50, 11.00, 9.75", [3]float64{12.5, 11, 9.75}, false},
		{"bsd uptime", "10:01  up 3 days, 2 users, load averages: 1.20 1.30 1.40", [3]float64{1.2, 1.3, 1.4}, false},
		{"garbage", "no load here", [3]float64{}, true},
		{"too short", "1.0 2.0", [3]float64{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLoad(tt.line)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProber_Probe(t *testing.T) {
	exec := &stubExecutor{out: "2\n7.25 6.00 5.00 1/300 4242\n64\n"}
	p := NewProber(exec, "gem5.opt", time.Second, nil)

	snap, err := p.Probe(context.Background(), "node01")
	require.NoError(t, err)
	assert.Equal(t, "node01", snap.Host)
	assert.Equal(t, 2, snap.RunningCount)
	assert.Equal(t, 7.25, snap.LoadAverage)
	assert.Equal(t, 64, snap.CoreCount)
	assert.False(t, snap.ProbedAt.IsZero())
	assert.Len(t, exec.cmds, 1)
}

func TestProber_ProbeFailures(t *testing.T) {
	tests := []struct {
		name   string
		exec   *stubExecutor
		reason string
	}{
		{"connection refused", &stubExecutor{err: errors.New("dial tcp: connection refused")}, "command failed"},
		{"malformed count", &stubExecutor{out: "two\n1.0 1.0 1.0\n8\n"}, "malformed output"},
		{"missing line", &stubExecutor{out: "0\n8\n"}, "malformed output"},
		{"timeout", &stubExecutor{block: true}, "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProber(tt.exec, "gem5.opt", 20*time.Millisecond, nil)
			_, err := p.Probe(context.Background(), "node01")
			require.Error(t, err)

			var pf *exception.ProbeFailure
			require.ErrorAs(t, err, &pf)
			assert.Equal(t, "node01", pf.Host)
			assert.Equal(t, tt.reason, pf.Reason)
			assert.False(t, exception.IsFatal(err))
		})
	}
}

func TestProber_Status(t *testing.T) {
	exec := &stubExecutor{out: "0\n10:00 up 1 day, load average: 1.00, 2.00, 3.00\n16\n"}
	p := NewProber(exec, "gem5.opt", 0, nil)

	st, err := p.Status(context.Background(), "node02")
	require.NoError(t, err)
	assert.Equal(t, 16, st.CoreCount)
	assert.Equal(t, [3]float64{1, 2, 3}, [3]float64{st.Load1, st.Load5, st.Load15})
	assert.True(t, st.Accepting())
}

func TestProber_Kill(t *testing.T) {
	exec := &stubExecutor{out: "5\n4\n"}
	p := NewProber(exec, "gem5.opt", 0, nil)

	res, err := p.Kill(context.Background(), "node03")
	require.NoError(t, err)
	assert.Equal(t, KillResult{Host: "node03", Killed: 4, Remaining: 1}, res)
	assert.Contains(t, exec.cmds[0], "pkill -c -f")
}
