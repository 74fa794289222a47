package types

import "time"

// LivenessWindow is how recent a heartbeat must be for its worker to count as live.
const LivenessWindow = 60 * time.Second

// WorkerStatus is the self-reported status carried by a heartbeat.
type WorkerStatus string

const (
	// StatusStarting is reported while the worker is still coming up.
	StatusStarting WorkerStatus = "Starting"

	// StatusAvailable is reported by a running worker with no sessions.
	StatusAvailable WorkerStatus = "Available"

	// StatusInUse is reported by a running worker serving at least one session.
	StatusInUse WorkerStatus = "InUse"

	// StatusOffline is reported on graceful shutdown. Offline workers are never live.
	StatusOffline WorkerStatus = "Offline"

	// StatusError is reported when the worker runs but its audio backend is unusable.
	StatusError WorkerStatus = "Error"
)

// Valid reports whether s is one of the known statuses.
func (s WorkerStatus) Valid() bool {
	switch s {
	case StatusStarting, StatusAvailable, StatusInUse, StatusOffline, StatusError:
		return true
	default:
		return false
	}
}

// HeartbeatRecord is the latest liveness and load report of one worker.
//
// Exactly one record exists per worker; every publish replaces the whole record.
type HeartbeatRecord struct {
	WorkerID         string       `json:"workerId"`
	DisplayName      string       `json:"displayName,omitempty"`
	ClientID         string       `json:"clientId,omitempty"`
	IsPrimary        bool         `json:"isPrimary"`
	Status           WorkerStatus `json:"status"`
	SessionCount     int          `json:"sessionCount"`
	TenantCount      int          `json:"tenantCount"`
	MemoryUsageMB    float64      `json:"memoryUsageMb"`
	PingMs           int64        `json:"pingMs"`
	BackendConnected bool         `json:"backendConnected"`
	Uptime           Duration     `json:"uptime"`
	LastHeartbeat    time.Time    `json:"lastHeartbeat"`
}

// IsLive reports whether the worker behind rec may receive new work at now.
//
// A worker is live iff it is not Offline and its last heartbeat is strictly
// younger than LivenessWindow.
func IsLive(rec HeartbeatRecord, now time.Time) bool {
	if rec.Status == StatusOffline {
		return false
	}

	return now.Sub(rec.LastHeartbeat) < LivenessWindow
}

// HeartbeatFields is the partial update merged into a heartbeat record by Registry.Upsert.
//
// Nil fields leave the stored value untouched.
type HeartbeatFields struct {
	DisplayName      *string
	ClientID         *string
	IsPrimary        *bool
	Status           *WorkerStatus
	SessionCount     *int
	TenantCount      *int
	MemoryUsageMB    *float64
	PingMs           *int64
	BackendConnected *bool
	Uptime           *time.Duration
}

// Apply merges the non-nil fields into rec.
func (f HeartbeatFields) Apply(rec *HeartbeatRecord) {
	if f.DisplayName != nil {
		rec.DisplayName = *f.DisplayName
	}
	if f.ClientID != nil {
		rec.ClientID = *f.ClientID
	}
	if f.IsPrimary != nil {
		rec.IsPrimary = *f.IsPrimary
	}
	if f.Status != nil {
		rec.Status = *f.Status
	}
	if f.SessionCount != nil {
		rec.SessionCount = *f.SessionCount
	}
	if f.TenantCount != nil {
		rec.TenantCount = *f.TenantCount
	}
	if f.MemoryUsageMB != nil {
		rec.MemoryUsageMB = *f.MemoryUsageMB
	}
	if f.PingMs != nil {
		rec.PingMs = *f.PingMs
	}
	if f.BackendConnected != nil {
		rec.BackendConnected = *f.BackendConnected
	}
	if f.Uptime != nil {
		rec.Uptime = Duration(*f.Uptime)
	}
}

// Duration is a time.Duration that marshals to JSON as a Go duration string.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)

	return nil
}
