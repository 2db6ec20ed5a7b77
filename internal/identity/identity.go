// Package identity holds the signed-in user's profile. It is display data
// only; nothing in the workflow depends on it.
package identity

import (
	"strings"
	"time"
)

type Profile struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DisplayName prefixes doctors with their title.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.Email)
	}
	if name == "" {
		return "there"
	}
	if strings.EqualFold(p.Role, "doctor") && !strings.HasPrefix(name, "Dr.") {
		return "Dr. " + name
	}
	return name
}

// Greeting is the dashboard header line for the local time now.
func (p Profile) Greeting(now time.Time) string {
	part := "evening"
	switch h := now.Hour(); {
	case h < 12:
		part = "morning"
	case h < 17:
		part = "afternoon"
	}
	return "Good " + part + ", " + p.DisplayName()
}
