// Package models contains shared data models used across the genforge codebase.
package models

import (
	"strings"
	"time"
)

// Tool is one of the fixed generation capabilities a job can request.
type Tool string

const (
	ToolText2Image  Tool = "text2image"
	ToolText2Mesh   Tool = "text2mesh"
	ToolTexturing   Tool = "texturing"
	ToolImage2Video Tool = "image2video"
)

// HeavyJobsPerHour is the number of heavy jobs a session may start per rolling window.
const HeavyJobsPerHour = 5

// HeavyJobWindow is the rolling window the heavy-job counter applies to.
const HeavyJobWindow = time.Hour

type toolSpec struct {
	cost  int
	heavy bool
}

var toolSpecs = map[Tool]toolSpec{
	ToolText2Image:  {cost: 1, heavy: false},
	ToolText2Mesh:   {cost: 5, heavy: true},
	ToolTexturing:   {cost: 4, heavy: true},
	ToolImage2Video: {cost: 8, heavy: true},
}

// AllTools returns every supported tool in a stable order.
func AllTools() []Tool {
	return []Tool{ToolText2Image, ToolText2Mesh, ToolTexturing, ToolImage2Video}
}

// ParseTool normalizes s and reports whether it names a supported tool.
func ParseTool(s string) (Tool, bool) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	_, ok := toolSpecs[t]
	return t, ok
}

// Valid reports whether t is a member of the tool enumeration.
func (t Tool) Valid() bool {
	_, ok := toolSpecs[t]
	return ok
}

// Cost returns the fixed credit cost of t. Unknown tools cost 0.
func (t Tool) Cost() int {
	return toolSpecs[t].cost
}

// Heavy reports whether jobs for t count against the hourly heavy-job limit.
func (t Tool) Heavy() bool {
	return toolSpecs[t].heavy
}

func (t Tool) String() string { return string(t) }
