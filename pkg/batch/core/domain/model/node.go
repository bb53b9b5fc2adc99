package model

import (
	"fmt"
	"time"
)

// NodeSnapshot is the capacity of one compute node at probe time.
// It is never persisted: capacity changes underneath us, so it is re-read at every decision.
type NodeSnapshot struct {
	Host         string
	RunningCount int     // RunningCount is the number of matching simulator processes.
	LoadAverage  float64 // LoadAverage is the 1-minute load average.
	CoreCount    int
	ProbedAt     time.Time
}

// Admits reports whether a job may be placed on the node.
// A node admits while running_count <= maxPerNode and the load is below half its cores.
func (s NodeSnapshot) Admits(maxPerNode int) bool {
	return s.RunningCount <= maxPerNode && s.LoadAverage < float64(s.CoreCount)/2
}

func (s NodeSnapshot) String() string {
	return fmt.Sprintf("%s(running=%d load=%.2f cores=%d)", s.Host, s.RunningCount, s.LoadAverage, s.CoreCount)
}

// NodeStatus is the administrative view of a node printed by "node check".
type NodeStatus struct {
	Host         string
	RunningCount int
	Load1        float64
	Load5        float64
	Load15       float64
	CoreCount    int
}

// Accepting reports whether the node's load leaves room for more jobs.
func (s NodeStatus) Accepting() bool {
	return s.CoreCount > 0 && s.Load1 < float64(s.CoreCount)/2
}
