package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ArbiterStatus reports one trigger arbiter.
type ArbiterStatus struct {
	State           string `json:"state"`
	Raw             uint64 `json:"raw"`
	Debounced       uint64 `json:"debounced"`
	DroppedCooldown uint64 `json:"droppedCooldown"`
	DroppedArmed    uint64 `json:"droppedArmed"`
	Admitted        uint64 `json:"admitted"`
}

// IntrusionStatus reports the PIR corroboration path.
type IntrusionStatus struct {
	Enabled             bool          `json:"enabled"`
	Arbiter             ArbiterStatus `json:"arbiter"`
	PendingChannels     []string      `json:"pendingChannels,omitempty"`
	Detections          uint64        `json:"detections"`
	AlertsPosted        uint64        `json:"alertsPosted"`
	Fallbacks           uint64        `json:"fallbacks"`
	FallbacksSuppressed uint64        `json:"fallbacksSuppressed"`
	FallbackFailures    uint64        `json:"fallbackFailures"`
}

// QueueStatus summarises spool occupancy.
type QueueStatus struct {
	Records    int    `json:"records"`
	Bytes      int64  `json:"bytes"`
	MaxRecords int    `json:"maxRecords"`
	MaxBytes   int64  `json:"maxBytes"`
	Evicted    int64  `json:"evicted"`
	Error      string `json:"error,omitempty"`
}

// SweepStatus describes the most recent sweep.
type SweepStatus struct {
	At        string `json:"at,omitempty"`
	Skipped   bool   `json:"skipped"`
	Aborted   bool   `json:"aborted"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Missing   int    `json:"missing"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

// Counters are cumulative since daemon start.
type Counters struct {
	Delivered         uint64 `json:"delivered"`
	Queued            uint64 `json:"queued"`
	Dropped           uint64 `json:"dropped"`
	CaptureFailures   uint64 `json:"captureFailures"`
	HeartbeatsSent    uint64 `json:"heartbeatsSent"`
	HeartbeatFailures uint64 `json:"heartbeatFailures"`
	ReconnectAttempts uint64 `json:"reconnectAttempts"`
}

// WorkflowStatus summarizes control loop state.
type WorkflowStatus struct {
	Running       bool            `json:"running"`
	Tier          string          `json:"tier"`
	Reachable     bool            `json:"reachable"`
	StorageOK     bool            `json:"storageOk"`
	StorageError  string          `json:"storageError,omitempty"`
	TimeSynced    bool            `json:"timeSynced"`
	StartedAt     string          `json:"startedAt,omitempty"`
	LastEvent     string          `json:"lastEvent,omitempty"`
	LastOutcome   string          `json:"lastOutcome,omitempty"`
	LastHeartbeat string          `json:"lastHeartbeat,omitempty"`
	LastReconnect string          `json:"lastReconnect,omitempty"`
	Queue         QueueStatus     `json:"queue"`
	LastSweep     SweepStatus     `json:"lastSweep"`
	Counters      Counters        `json:"counters"`
	Camera        ArbiterStatus   `json:"camera"`
	Intrusion     IntrusionStatus `json:"intrusion"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DeviceID     string         `json:"deviceId"`
	Version      string         `json:"version"`
	QueueDBPath  string         `json:"queueDbPath"`
	SpoolDir     string         `json:"spoolDir"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// QueueRecord describes a spooled capture in a transport-friendly format.
type QueueRecord struct {
	Key        string `json:"key"`
	CapturedAt int64  `json:"capturedAt"`
	SizeBytes  int64  `json:"sizeBytes"`
	Seq        int64  `json:"seq"`
	StoredAt   string `json:"storedAt,omitempty"`
}

// QueueListResponse wraps the spooled records, oldest first.
type QueueListResponse struct {
	Records []QueueRecord `json:"records"`
	Bytes   int64         `json:"bytes"`
}

// TriggerRequest offers a raw camera trigger.
type TriggerRequest struct {
	Channel string `json:"channel"`
}

// TriggerResponse reports whether the arbiter accepted the trigger as its
// pending event.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
}

// SensorRequest reports a PIR pulse on one channel.
type SensorRequest struct {
	Channel string `json:"channel"`
}

// SensorResponse lists the channels currently inside the corroboration window.
type SensorResponse struct {
	Pending []string `json:"pending"`
}

// SweepResponse acknowledges a manual sweep request.
type SweepResponse struct {
	Requested bool `json:"requested"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
