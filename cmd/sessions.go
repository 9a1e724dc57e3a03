package cmd

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/spigell/recruitbot/internal/session"
)

// sessionsReport mirrors the admin listing: truncated ids and a count.
type sessionsReport struct {
	Total    int      `json:"total_sessions"`
	Sessions []string `json:"sessions"`
}

func listSessions(registry *session.Registry) sessionsReport {
	ids := registry.List()
	return sessionsReport{Total: len(ids), Sessions: ids}
}

func printSessions(registry *session.Registry) {
	report := listSessions(registry)
	fmt.Printf("%s %d\n", color.GreenString("active sessions:"), report.Total)
	for _, id := range report.Sessions {
		fmt.Printf("  %s\n", id)
	}
}
