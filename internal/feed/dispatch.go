package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/monitoring"
)

// CommandSender writes one command line to a link.
type CommandSender interface {
	SendCommand(string) error
}

// GoalCommand formats the command sent to the autopilot for a desired goal.
func GoalCommand(goal float64) (string, error) {
	b, err := json.Marshal(struct {
		DesiredGoal float64 `json:"desired_goal"`
	}{goal})
	if err != nil {
		return "", fmt.Errorf("failed to encode goal: %w", err)
	}
	return string(b), nil
}

// GoalDispatcher forwards desired-goal changes to the link. Changes arriving
// faster than the link accepts them collapse to the most recent one.
type GoalDispatcher struct {
	sender  CommandSender
	pending chan float64
}

func NewGoalDispatcher(sender CommandSender) *GoalDispatcher {
	return &GoalDispatcher{sender: sender, pending: make(chan float64, 1)}
}

// Notify queues c without blocking. It is suitable for dial.Owner.OnGoalChange.
func (g *GoalDispatcher) Notify(c dial.GoalChange) {
	for {
		select {
		case g.pending <- c.DesiredGoal:
			return
		default:
		}
		select {
		case <-g.pending:
		default:
		}
	}
}

// Run writes queued goals until ctx is cancelled. Send failures are logged.
func (g *GoalDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case goal := <-g.pending:
			cmd, err := GoalCommand(goal)
			if err != nil {
				monitoring.Logf("feed: %v", err)
				continue
			}
			if err := g.sender.SendCommand(cmd); err != nil {
				monitoring.Logf("feed: failed to send %s: %v", cmd, err)
			}
		}
	}
}
