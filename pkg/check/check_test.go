package check

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/config"
	"kernos/pkg/programs"
)

func TestSuitePasses(t *testing.T) {
	r := NewRunner(config.New(), programs.Registry(), nil)
	results := r.Run(context.Background(), programs.Suite())

	for _, res := range results {
		assert.NoError(t, res.Err, "case %s\n%s", res.Case.Name, res.Output)
	}
	s := Summarize(results)
	assert.Equal(t, len(results), s.Passed)
	assert.Zero(t, s.Failed)
}

func TestResultsKeepOrder(t *testing.T) {
	cases, err := programs.Select(programs.Suite(), []string{"echo", "exit", "halt", "recurse"})
	require.NoError(t, err)

	cfg := config.New()
	cfg.CheckWorkers = 2
	results := NewRunner(cfg, nil, nil).Run(context.Background(), cases)

	require.Len(t, results, len(cases))
	for i := range cases {
		assert.Equal(t, cases[i].Name, results[i].Case.Name)
	}
	assert.True(t, results[2].Halted)
	assert.Equal(t, 57, results[1].Status)
	assert.Equal(t, 3, results[3].Status)
}

func TestMismatchIsReported(t *testing.T) {
	c := programs.Case{
		Name:    "echo-wrong",
		CmdLine: "echo hi",
		Output:  "bye\necho: exit(0)\n",
	}

	res := NewRunner(nil, nil, nil).RunCase(context.Background(), c)
	assert.ErrorIs(t, res.Err, programs.ErrMismatch)
	assert.Equal(t, "hi\necho: exit(0)\n", res.Output)
	assert.Equal(t, 0, res.Status)
	assert.False(t, res.Passed())
}

func TestUnknownProgramFails(t *testing.T) {
	c := programs.Case{Name: "missing", CmdLine: "nope"}

	res := NewRunner(nil, nil, nil).RunCase(context.Background(), c)
	assert.Error(t, res.Err)
	assert.Equal(t, -1, res.Status)
}

func TestTimeout(t *testing.T) {
	c := programs.Case{Name: "stuck", CmdLine: "read-stdin 3", Input: "abc"}
	c.Output = "(read-stdin) got 3: 'abc'\nread-stdin: exit(0)\n"

	r := NewRunner(nil, nil, nil)
	r.SetTimeout(5 * time.Second)
	r.SetTimeout(0)
	assert.Equal(t, 5*time.Second, r.timeout)

	res := r.RunCase(context.Background(), c)
	assert.NoError(t, res.Err)
}

func TestMergeFiles(t *testing.T) {
	base := []config.FileConfig{{Name: "a", Content: "1"}, {Name: "b", Content: "2"}}
	extra := []config.FileConfig{{Name: "b", Content: "3"}, {Name: "c"}}

	got := mergeFiles(base, extra)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, "3", got[1].Content)
	assert.Equal(t, "c", got[2].Name)
}

func TestReport(t *testing.T) {
	results := []Result{
		{Case: programs.Case{Name: "ok"}},
		{Case: programs.Case{Name: "bad"}, Err: programs.ErrMismatch},
	}

	var buf bytes.Buffer
	s := Report(&buf, results, true)
	assert.Equal(t, Summary{Passed: 1, Failed: 1}, s)
	assert.Contains(t, buf.String(), "pass ok")
	assert.Contains(t, buf.String(), "FAIL bad")
	assert.Contains(t, buf.String(), "1 of 2 checks passed")
}
