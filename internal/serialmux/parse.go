package serialmux

import "strings"

const (
	LineTypeNav     = "nav"
	LineTypeGoalAck = "goal_ack"
	LineTypeConfig  = "config"
	LineTypeSLCAN   = "slcan"
	LineTypeUnknown = "unknown"
)

// ClassifyLine returns a coarse type for a line read from a helm serial link
// so callers can route it without fully decoding it.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return LineTypeUnknown
	}
	if strings.HasPrefix(line, "{") {
		switch {
		case strings.Contains(line, `"nav_update"`) || strings.Contains(line, `"heading"`):
			return LineTypeNav
		case strings.Contains(line, `"desired_goal"`):
			return LineTypeGoalAck
		default:
			return LineTypeConfig
		}
	}
	switch line[0] {
	case 't', 'T', 'r', 'R':
		return LineTypeSLCAN
	}
	return LineTypeUnknown
}
