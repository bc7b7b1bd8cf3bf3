// Package gatewayproto defines the wire protocol spoken between a Session
// and an on-premise sensor gateway: the message envelope, the closed set of
// request/response/notification types, and the reading and sensor shapes
// carried inside them.
package gatewayproto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MessageType is the discriminator carried in every envelope's Type field.
type MessageType string

const (
	// Client -> server requests.
	TypePostLogin          MessageType = "POST_LOGIN"
	TypePostSubChanges     MessageType = "POST_SUB_CHANGES"
	TypePostUnsubChanges   MessageType = "POST_UNSUB_CHANGES"
	TypeGetDyn             MessageType = "GET_DYN"
	TypeGetDynConnected    MessageType = "GET_DYN_CONNECTED"
	TypeTakeDynReading     MessageType = "TAKE_DYN_READING"
	TypeTakeDynTemp        MessageType = "TAKE_DYN_TEMP"
	TypeTakeDynBatt        MessageType = "TAKE_DYN_BATT"
	TypeGetDynReadings     MessageType = "GET_DYN_READINGS"
	TypeGetDynTemps        MessageType = "GET_DYN_TEMPS"
	TypeGetDynBatts        MessageType = "GET_DYN_BATTS"

	// Server -> client responses and notifications.
	TypeRtnLogin              MessageType = "RTN_LOGIN"
	TypeRtnErr                MessageType = "RTN_ERR"
	TypeRtnDyn                MessageType = "RTN_DYN"
	TypeRtnDynReadings        MessageType = "RTN_DYN_READINGS"
	TypeRtnDynTemps           MessageType = "RTN_DYN_TEMPS"
	TypeRtnDynBatts           MessageType = "RTN_DYN_BATTS"
	TypeNotDynConn            MessageType = "NOT_DYN_CONN"
	TypeNotApConn             MessageType = "NOT_AP_CONN"
	TypeNotDynReadingStarted  MessageType = "NOT_DYN_READING_STARTED"
	TypeNotDynReading         MessageType = "NOT_DYN_READING"
	TypeNotDynTemp            MessageType = "NOT_DYN_TEMP"
	TypeNotDynBatt            MessageType = "NOT_DYN_BATT"
)

// requestTypes and responseTypes form the disjoint discriminated union the
// codec validates against. Kept as sets (not a single map) so R2 — a
// validated request never parses as a response — is structural rather than
// something that has to be remembered at every call site.
var requestTypes = map[MessageType]bool{
	TypePostLogin:        true,
	TypePostSubChanges:   true,
	TypePostUnsubChanges: true,
	TypeGetDyn:           true,
	TypeGetDynConnected:  true,
	TypeTakeDynReading:   true,
	TypeTakeDynTemp:      true,
	TypeTakeDynBatt:      true,
	TypeGetDynReadings:   true,
	TypeGetDynTemps:      true,
	TypeGetDynBatts:      true,
}

var responseTypes = map[MessageType]bool{
	TypeRtnLogin:             true,
	TypeRtnErr:               true,
	TypeRtnDyn:               true,
	TypeRtnDynReadings:       true,
	TypeRtnDynTemps:          true,
	TypeRtnDynBatts:          true,
	TypeNotDynConn:           true,
	TypeNotApConn:            true,
	TypeNotDynReadingStarted: true,
	TypeNotDynReading:        true,
	TypeNotDynTemp:           true,
	TypeNotDynBatt:           true,
}

// IsRequestType reports whether t is one of the client->server request types.
func IsRequestType(t MessageType) bool { return requestTypes[t] }

// IsResponseType reports whether t is one of the server->client response or
// notification types.
func IsResponseType(t MessageType) bool { return responseTypes[t] }

// Envelope is the base message shape every frame is wrapped in, independent
// of what Data actually decodes to.
type Envelope struct {
	Type   MessageType     `json:"Type"`
	From   string          `json:"From"`
	To     string          `json:"To,omitempty"`
	Target string          `json:"Target,omitempty"`
	Data   json.RawMessage `json:"Data"`
}

// Validate checks the envelope shape invariants from spec.md §3: Type must
// be non-empty and From must be one of the two legal endpoints.
func (e *Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: empty Type", ErrSchema)
	}
	if e.From != "UI" && e.From != "SERV" {
		return fmt.Errorf("%w: unexpected From %q", ErrSchema, e.From)
	}
	return nil
}

// GatewayDescriptor is the externally sourced, session-immutable identity of
// a gateway. It is fetched from the out-of-scope gateway registry
// (internal/registry.GatewayRegistry) and never persisted by this package.
type GatewayDescriptor struct {
	ID                 string    `json:"id"`
	URL                string    `json:"url"`
	Username           string    `json:"username"`
	Password           string    `json:"password"`
	Status             string    `json:"status,omitempty"`
	LastAuthenticatedAt time.Time `json:"lastAuthenticatedAt,omitempty"`
}

// Validate rejects descriptors missing the fields connect() requires. These
// are programmer errors per spec.md §7 ("thrown exceptions are reserved for
// programmer errors (missing id/url at connect)"), so the caller gets a Go
// error, not a logged-and-swallowed failure.
func (d GatewayDescriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("gateway descriptor missing id")
	}
	if d.URL == "" {
		return fmt.Errorf("gateway descriptor missing url")
	}
	return nil
}

// FlexBool decodes a JSON boolean or a JSON number (non-zero truthy) into a
// single semantic bool. Sensor.Connected is documented to appear as either
// shape on the wire (spec.md §9 Open Questions); this type resolves that
// ambiguity by treating both as the same value rather than guessing which
// one is "correct".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*b = FlexBool(asBool)
		return nil
	}
	var asNum json.Number
	if err := json.Unmarshal(data, &asNum); err == nil {
		f, err := asNum.Float64()
		if err != nil {
			return fmt.Errorf("decoding Connected as number: %w", err)
		}
		*b = FlexBool(f != 0)
		return nil
	}
	return fmt.Errorf("Connected field is neither bool nor number: %s", string(data))
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// FlexString decodes a JSON string or number into a canonical string. The
// wire represents Serial as either shape depending on message type (spec.md
// §3); this is the codec-level coercion point used for reading records.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	var asStr string
	if err := json.Unmarshal(data, &asStr); err == nil {
		*s = FlexString(asStr)
		return nil
	}
	var asNum json.Number
	if err := json.Unmarshal(data, &asNum); err == nil {
		*s = FlexString(asNum.String())
		return nil
	}
	return fmt.Errorf("Serial field is neither string nor number: %s", string(data))
}

func (s FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// NormalizeSerial coerces either wire shape of Serial (numeric or string)
// to the canonical string form used for filter comparisons (B3).
func NormalizeSerial(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case FlexString:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Sensor is the runtime view of a single gateway-attached sensor (spec.md §3).
type Sensor struct {
	Serial     int      `json:"Serial"`
	Connected  FlexBool `json:"Connected"`
	AccessPoint string  `json:"AccessPoint,omitempty"`
	PartNum    string   `json:"PartNum,omitempty"`
	ReadRate   int      `json:"ReadRate,omitempty"`
	GMode      int      `json:"GMode,omitempty"`
	FreqMode   int      `json:"FreqMode,omitempty"`
	Coupling   int      `json:"Coupling,omitempty"`
	ReadPeriod int      `json:"ReadPeriod,omitempty"`
	Samples    int      `json:"Samples,omitempty"`
	Fs         float64  `json:"Fs,omitempty"`
	Fmax       float64  `json:"Fmax,omitempty"`
	HwVer      string   `json:"HwVer,omitempty"`
	FmVer      string   `json:"FmVer,omitempty"`
	Machine    string   `json:"Machine,omitempty"`
	Early      float64  `json:"Early,omitempty"`
	Crit       float64  `json:"Crit,omitempty"`
	Nickname   string   `json:"Nickname,omitempty"`
	EarlyUnit  string   `json:"EarlyUnit,omitempty"`
	CritUnit   string   `json:"CritUnit,omitempty"`
}

// BatteryReading is a timestamped battery-percentage reading (spec.md §3).
type BatteryReading struct {
	ID     int        `json:"ID"`
	Serial FlexString `json:"Serial"`
	Time   string     `json:"Time"`
	Batt   int        `json:"Batt"`
}

// TemperatureReading is a timestamped temperature reading in degrees C.
type TemperatureReading struct {
	ID     int        `json:"ID"`
	Serial FlexString `json:"Serial"`
	Time   string     `json:"Time"`
	Temp   int        `json:"Temp"`
}

// VibrationReadingSimple is the shape shared by every vibration reading:
// one scalar per axis.
type VibrationReadingSimple struct {
	ID     int        `json:"ID"`
	Serial FlexString `json:"Serial"`
	Time   string     `json:"Time"`
	X      string     `json:"X"`
	Y      string     `json:"Y"`
	Z      string     `json:"Z"`
}

// VibrationReadingDetailed additionally carries peak/peak-to-peak/RMS
// summary statistics and the raw time-domain sample arrays per axis.
type VibrationReadingDetailed struct {
	ID     int        `json:"ID"`
	Serial FlexString `json:"Serial"`
	Time   string     `json:"Time"`
	Xpk    float64    `json:"Xpk"`
	Ypk    float64    `json:"Ypk"`
	Zpk    float64    `json:"Zpk"`
	Xpp    float64    `json:"Xpp"`
	Ypp    float64    `json:"Ypp"`
	Zpp    float64    `json:"Zpp"`
	Xrms   float64    `json:"Xrms"`
	Yrms   float64    `json:"Yrms"`
	Zrms   float64    `json:"Zrms"`
	X      []float64  `json:"X"`
	Y      []float64  `json:"Y"`
	Z      []float64  `json:"Z"`
}

// ToSimple materializes the simple-vibration view of a detailed reading by
// taking the peak magnitudes as X/Y/Z, per spec.md §4.3 and testable
// property B2.
func (d VibrationReadingDetailed) ToSimple() VibrationReadingSimple {
	return VibrationReadingSimple{
		ID:     d.ID,
		Serial: d.Serial,
		Time:   d.Time,
		X:      strconv.FormatFloat(d.Xpk, 'f', -1, 64),
		Y:      strconv.FormatFloat(d.Ypk, 'f', -1, 64),
		Z:      strconv.FormatFloat(d.Zpk, 'f', -1, 64),
	}
}

// VibrationWaveform is a derived time-domain signal along one axis.
type VibrationWaveform struct {
	Axis       string      `json:"axis"`
	SampleRate float64     `json:"sampleRate"`
	Data       []WavePoint `json:"data"`
	Unit       string      `json:"unit"`
}

// WavePoint is a single (time, value) sample of a VibrationWaveform.
type WavePoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// FFTResult is a one-sided magnitude spectrum.
type FFTResult struct {
	Frequencies []float64 `json:"frequencies"`
	Magnitudes  []float64 `json:"magnitudes"`
}
