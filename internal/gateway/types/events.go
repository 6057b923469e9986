package types

// Dashboard event type discriminators.
const (
	EventDeviceConnected      = "deviceConnected"
	EventDeviceDisconnected   = "deviceDisconnected"
	EventDeviceUpdated        = "deviceUpdated"
	EventDeviceStatus         = "deviceStatus"
	EventAccessAttempt        = "accessAttempt"
	EventNewRegistration      = "newRegistration"
	EventRegistrationApproved = "registrationApproved"
	EventRegistrationRejected = "registrationRejected"
	EventSystemHealth         = "systemHealth"
	EventPendingRegistrations = "pendingRegistrations"
	EventAccessLogs           = "accessLogs"
	EventAccessStats          = "accessStats"
	EventError                = "error"
)

// Commands a dashboard subscriber may send over its websocket.
const (
	CmdGetAccessStats         = "GET_ACCESS_STATS"
	CmdToggleRegistrationMode = "TOGGLE_REGISTRATION_MODE"
)

// Event is the JSON envelope pushed to dashboard subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SubscriberCommand is an inbound dashboard message.
type SubscriberCommand struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
}

// AccessAttemptEvent is the payload broadcast after every audited access
// decision. Department and holder fall back to "Unknown" when no credential
// matched.
type AccessAttemptEvent struct {
	CardID     string  `json:"cardId"`
	DeviceID   string  `json:"deviceId"`
	Location   string  `json:"location"`
	Department string  `json:"department"`
	HolderName string  `json:"holderName"`
	Timestamp  int64   `json:"timestamp"` // unix milliseconds
	Authorized bool    `json:"authorized"`
	Accuracy   float64 `json:"accuracy"`
}

// SystemHealth is the aggregate counter snapshot sent to new subscribers
// and exposed on the admin API.
type SystemHealth struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`

	Devices struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"devices"`

	Cards struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"cards"`

	PendingRegistrations int `json:"pendingRegistrations"`
	ConnectedDevices     int `json:"connectedDevices"`
	Subscribers          int `json:"subscribers"`
}

// DeviceAccessStats is one row of the per-device access aggregate.
type DeviceAccessStats struct {
	DeviceID     string `json:"deviceId"`
	Location     string `json:"location"`
	Total        int    `json:"total"`
	Authorized   int    `json:"authorized"`
	Unauthorized int    `json:"unauthorized"`
}
