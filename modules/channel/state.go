package channel

import (
	"fmt"

	"github.com/example/pulse-dashboard/domain/dashboard"
)

// Status texts shown by the connection indicator.
const (
	TextConnecting  = "Connecting"
	TextOnline      = "Online"
	TextOffline     = "Disconnected"
	TextFailed      = "Connection failed"
	TextUnavailable = "Push channel unavailable"
)

func newStatus(state dashboard.ConnectionState, attempt, max int) dashboard.ConnectionStatus {
	s := dashboard.ConnectionStatus{
		State:       state,
		Attempt:     attempt,
		MaxAttempts: max,
	}
	switch state {
	case dashboard.StateConnecting:
		s.Text = TextConnecting
	case dashboard.StateConnected:
		s.Text = TextOnline
	case dashboard.StateReconnecting:
		s.Text = fmt.Sprintf("Reconnecting %d/%d", attempt, max)
	case dashboard.StateFailed:
		s.Text = TextFailed
	default:
		s.Text = TextOffline
	}
	return s
}
