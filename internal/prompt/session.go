package prompt

import (
	"fmt"
	"strings"
	"time"
)

const (
	RunModeAssistantAPI = "AssistantAPI"
	RunModeAutogen      = "Autogen"
	RunModeCrewAI       = "CrewAI"
	RunModeDirect       = "Direct"
)

type RunMode struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

var runModes = []RunMode{
	{Name: RunModeAssistantAPI, Roles: []string{"Turbo4", "Informational"}},
	{Name: RunModeAutogen, Roles: []string{"Admin", "Engineer", "Data Analyst", "Scrum Master", "Insights Reporter"}},
	{Name: RunModeCrewAI, Roles: []string{"Team"}},
	{Name: RunModeDirect, Roles: []string{"Translator"}},
}

// RunModes lists the orchestration backends with the roles each one uses.
func RunModes() []RunMode {
	out := make([]RunMode, len(runModes))
	for i, mode := range runModes {
		out[i] = RunMode{Name: mode.Name, Roles: append([]string(nil), mode.Roles...)}
	}
	return out
}

func ValidRunMode(name string) bool {
	for _, mode := range runModes {
		if mode.Name == name {
			return true
		}
	}
	return false
}

// GenerateSessionID turns a prompt into a directory-safe id:
//
//	"get jobs with 'Completed' status" at 12:22:22 -> "get_jobs_with_completed_status__12_22_22"
func GenerateSessionID(rawPrompt string, now time.Time) string {
	id := strings.ToLower(rawPrompt)
	id = strings.ReplaceAll(id, " ", "_")
	id = strings.ReplaceAll(id, "'", "")
	id = strings.NewReplacer("/", "_", `\`, "_").Replace(id)
	if runes := []rune(id); len(runes) > 30 {
		id = string(runes[:30])
	}
	return fmt.Sprintf("%s__%02d_%02d_%02d", id, now.Hour(), now.Minute(), now.Second())
}

// WrapPrompt frames a raw question as a database query for the agents.
func WrapPrompt(raw string) string {
	return fmt.Sprintf("Fulfill this database query: %s. ", raw)
}
