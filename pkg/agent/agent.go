// Package agent layers named roles on top of the tool-call orchestrator: an
// agent carries instructions, tools, and delegate agents, synthesizes its
// own system prompt, and reports lifecycle events while it runs.
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// Agent is a named role. Delegates are other agents this one may hand the
// conversation to through the synthetic transfer tool.
type Agent struct {
	Name         string
	Description  string
	Instructions string
	Model        string
	Tools        []chat.Tool
	Delegates    []*Agent

	MaxTokens   int
	Temperature *float64
}

// Delegate returns the delegate with the given name, or nil.
func (a *Agent) Delegate(name string) *Agent {
	for _, d := range a.Delegates {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// SystemPrompt builds the agent's system prompt: identity, instructions,
// tool and delegate listings, and the current time for temporal grounding.
func (a *Agent) SystemPrompt(now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", a.Name)
	if a.Description != "" {
		fmt.Fprintf(&b, " %s", a.Description)
	}
	b.WriteString("\n")

	if a.Instructions != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Instructions)
	}

	if len(a.Tools) > 0 {
		b.WriteString("\nYou have the following tools available:\n")
		for _, tool := range a.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		}
	}

	if len(a.Delegates) > 0 {
		b.WriteString("\nYou can hand the conversation to the following agents using the \"transfer\" tool:\n")
		for _, d := range a.Delegates {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		}
		b.WriteString("After a delegation completes, always provide a final answer yourself.\n")
	}

	fmt.Fprintf(&b, "\nThe current time is %s.", now.Format(time.RFC1123))
	return b.String()
}
