package canbus

import (
	"os/exec"
	"strings"
)

// Runner executes an external program and returns its combined output.
// Link goes through it so tests can record ip invocations instead of
// touching the host network.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// RecordingRunner records calls and answers them with Respond, or with empty
// successful output when Respond is nil.
type RecordingRunner struct {
	Calls   []Call
	Respond func(Call) ([]byte, error)
}

func (r *RecordingRunner) Run(name string, args ...string) ([]byte, error) {
	c := Call{Name: name, Args: args}
	r.Calls = append(r.Calls, c)
	if r.Respond == nil {
		return nil, nil
	}
	return r.Respond(c)
}

// Last returns the most recent call, or the zero Call if there was none.
func (r *RecordingRunner) Last() Call {
	if len(r.Calls) == 0 {
		return Call{}
	}
	return r.Calls[len(r.Calls)-1]
}
