package types

// Message type discriminators a device may send. Each inbound unit is a
// single JSON object; the gateway answers with exactly one response token.
const (
	MsgDeviceInfo       = "DEVICE_INFO"
	MsgHeartbeat        = "HEARTBEAT"
	MsgAccess           = "ACCESS"
	MsgRegistration     = "REGISTRATION"
	MsgNextFingerID     = "GET_NEXT_FINGER_ID"
	MsgRegistrationMode = "REGISTRATION_MODE" // gateway -> device control push
)

// Token is a plain-text protocol response written back to the device.
type Token string

const (
	TokenOK             Token = "OK"
	TokenError          Token = "ERROR"
	TokenUnauthorized   Token = "UNAUTHORIZED"
	TokenExpired        Token = "EXPIRED"
	TokenDuplicate      Token = "DUPLICATE"
	TokenInvalidCommand Token = "INVALID_COMMAND"
)

// DeviceMessage is the superset of all inbound device message fields; the
// Type discriminator decides which are meaningful.
type DeviceMessage struct {
	Type         string  `json:"type"`
	DeviceID     string  `json:"device_id,omitempty"`
	Location     string  `json:"location,omitempty"`
	CardID       string  `json:"card_id,omitempty"`
	TemplateData string  `json:"template_data,omitempty"`
	FingerID     int64   `json:"finger_id,omitempty"` // slot the device claimed via GET_NEXT_FINGER_ID
	Timestamp    int64   `json:"timestamp,omitempty"` // device clock, seconds since epoch
	Authorized   bool    `json:"authorized,omitempty"` // device-local biometric match result
	Accuracy     float64 `json:"accuracy,omitempty"`
}

// RegistrationModePush is sent down a device's live socket when an operator
// toggles its enrollment mode.
type RegistrationModePush struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}
