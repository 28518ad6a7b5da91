package archive

import "time"

// Entry is one archived message.
type Entry struct {
	Received        time.Time  `json:"received"`
	DeviceTime      *time.Time `json:"device_time,omitempty"`
	Source          string     `json:"source"`
	Hostname        string     `json:"hostname"`
	Process         string     `json:"process"`
	PID             *int       `json:"pid,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	Facility        string     `json:"facility,omitempty"`
	Severity        string     `json:"severity,omitempty"`
	Level           string     `json:"level"`
	Format          string     `json:"format"`
	Body            string     `json:"body"`
	Raw             string     `json:"raw"`
	DeviceTimestamp *string    `json:"device_timestamp,omitempty"`
}

// QueryOpts filters archive queries. Zero values match everything.
type QueryOpts struct {
	Source string
	Since  time.Time
	Levels []string
}
