package models

type TaskStats struct {
	StatusStats   map[string]int64 `json:"statusStats"`
	PriorityStats map[string]int64 `json:"priorityStats"`
	OverdueCount  int64            `json:"overdueCount"`
	TotalTasks    int64            `json:"totalTasks"`
}
