package audit

import (
	"fmt"
	"time"
)

func (a *Auditor) LoginSucceeded(userID, sourceIP string) {
	a.Log(Entry{EventType: EventLoginSuccess, UserID: userID, SourceIP: sourceIP})
}

func (a *Auditor) LoginFailed(sourceIP string) {
	a.Log(Entry{EventType: EventLoginFailure, SourceIP: sourceIP})
}

// LoggedOut records a logout and how many terminals it tore down.
func (a *Auditor) LoggedOut(userID, sourceIP string, terminals int) {
	a.Log(Entry{
		EventType: EventLogout,
		UserID:    userID,
		SourceIP:  sourceIP,
		Details:   fmt.Sprintf("terminals_closed=%d", terminals),
	})
}

func (a *Auditor) TerminalStarted(userID, connID, backend string, pid int) {
	a.Log(Entry{
		EventType:    EventTerminalStart,
		UserID:       userID,
		ConnectionID: connID,
		Details:      fmt.Sprintf("backend=%s pid=%d", backend, pid),
	})
}

// TerminalEnded records why a terminal closed and how long it ran.
func (a *Auditor) TerminalEnded(userID, connID, reason string, code int, signal string, lifetime time.Duration) {
	details := fmt.Sprintf("reason=%s code=%d", reason, code)
	if signal != "" {
		details += " signal=" + signal
	}
	a.Log(Entry{
		EventType:    EventTerminalEnd,
		UserID:       userID,
		ConnectionID: connID,
		Details:      details,
		DurationMs:   lifetime.Milliseconds(),
	})
}
