package types

import "time"

// WorkerView is a heartbeat record with its liveness evaluated.
type WorkerView struct {
	HeartbeatRecord
	Live bool `json:"live"`
}

// ClusterStatus is the fleet-wide summary shown to operators.
type ClusterStatus struct {
	Workers           []WorkerView `json:"workers"`
	Online            int          `json:"online"`
	TotalSessions     int          `json:"totalSessions"`
	TotalTenants      int          `json:"totalTenants"`
	TotalMemoryMB     float64      `json:"totalMemoryMb"`
	BackendConnected  int          `json:"backendConnected"`
	ActiveAssignments int          `json:"activeAssignments"`
	SavedSnapshots    int          `json:"savedSnapshots"`
	Strategy          string       `json:"strategy"`
	Primary           string       `json:"primary,omitempty"`
	GeneratedAt       time.Time    `json:"generatedAt"`
}

// Summarize fills the aggregate fields of s from its worker views.
// Totals only count live workers.
func (s *ClusterStatus) Summarize() {
	s.Online, s.TotalSessions, s.TotalTenants, s.TotalMemoryMB, s.BackendConnected = 0, 0, 0, 0, 0
	for _, w := range s.Workers {
		if !w.Live {
			continue
		}
		s.Online++
		s.TotalSessions += w.SessionCount
		s.TotalTenants += w.TenantCount
		s.TotalMemoryMB += w.MemoryUsageMB
		if w.BackendConnected {
			s.BackendConnected++
		}
	}
}

// GuildStatus is everything known about one guild.
type GuildStatus struct {
	GuildID    string           `json:"guildId"`
	Assignment *GuildAssignment `json:"assignment,omitempty"`
	OwnerLive  bool             `json:"ownerLive"`
	Snapshot   *SessionSnapshot `json:"snapshot,omitempty"`
}
