package workflow

import (
	"sort"
	"strings"
)

// category maps task keywords to the agents that handle them. The table
// order is significant: ties in score are broken by declaration order, so
// selection is deterministic for identical input.
type category struct {
	name     string
	keywords []string
	agents   []string
}

var categories = []category{
	{name: "review", keywords: []string{"review", "analyze", "check", "audit"}, agents: []string{"code-reviewer"}},
	{name: "security", keywords: []string{"security", "vulnerability", "safe"}, agents: []string{"security-analyzer"}},
	{name: "performance", keywords: []string{"optimize", "performance", "speed", "memory"}, agents: []string{"performance-optimizer"}},
	{name: "testing", keywords: []string{"test", "spec", "coverage"}, agents: []string{"test-generator"}},
	{name: "documentation", keywords: []string{"document", "explain", "comment", "readme"}, agents: []string{"doc-writer"}},
	{name: "debugging", keywords: []string{"debug", "fix", "error", "bug"}, agents: []string{"debugger-expert"}},
	{name: "architecture", keywords: []string{"architecture", "design", "structure"}, agents: []string{"system-architect"}},
}

// SelectAgents chooses agents for a free-form task by scoring each category
// on the number of its keywords present in the task text. Categories with a
// positive score contribute their agents, highest score first; ties keep
// declaration order. With no match at all the code reviewer is the default.
//
// The function is pure: identical input always yields identical output.
func SelectAgents(task string) []string {
	taskLower := strings.ToLower(task)

	type scored struct {
		index int
		score int
	}
	var matches []scored
	for i, cat := range categories {
		score := 0
		for _, keyword := range cat.keywords {
			if strings.Contains(taskLower, keyword) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{index: i, score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score > matches[b].score
	})

	var agents []string
	seen := make(map[string]bool)
	for _, m := range matches {
		for _, agent := range categories[m.index].agents {
			if !seen[agent] {
				seen[agent] = true
				agents = append(agents, agent)
			}
		}
	}

	if len(agents) == 0 {
		agents = []string{"code-reviewer"}
	}
	return agents
}
