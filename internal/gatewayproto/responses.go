package gatewayproto

import "encoding/json"

// RtnLogin is the RTN_LOGIN response payload.
type RtnLogin struct {
	Email       string `json:"Email"`
	First       string `json:"First,omitempty"`
	Last        string `json:"Last,omitempty"`
	Success     bool   `json:"Success"`
	AccessLevel int    `json:"AccessLevel,omitempty"`
	Verified    bool   `json:"Verified,omitempty"`
}

// RtnErr is the RTN_ERR response payload.
type RtnErr struct {
	Attempt string `json:"Attempt"`
	Error   string `json:"Error"`
}

// RtnDyn is the RTN_DYN response payload: Data is a bare array of Sensor.
type RtnDyn struct {
	Sensors []Sensor
}

// RtnDynReadings is the RTN_DYN_READINGS response: Data is an array whose
// elements are either simple or detailed vibration readings.
type RtnDynReadings struct {
	Simple   []VibrationReadingSimple
	Detailed []VibrationReadingDetailed
}

// RtnDynTemps is the RTN_DYN_TEMPS response: Data is an array of readings.
type RtnDynTemps struct {
	Readings []TemperatureReading
}

// RtnDynBatts is the RTN_DYN_BATTS response: Data is an array of readings.
type RtnDynBatts struct {
	Readings []BatteryReading
}

// NotDynConn is the NOT_DYN_CONN notification payload.
type NotDynConn struct {
	Serial    int      `json:"Serial"`
	Connected FlexBool `json:"Connected"`
	Time      string   `json:"Time"`
}

// NotApConn is the NOT_AP_CONN notification payload.
type NotApConn struct {
	Serial    int `json:"Serial"`
	Connected int `json:"Connected"`
}

// NotDynReadingStarted is the NOT_DYN_READING_STARTED notification payload.
type NotDynReadingStarted struct {
	Serial  int  `json:"Serial"`
	Success bool `json:"Success"`
}

// NotDynReading is the NOT_DYN_READING notification: Data is a map keyed by
// reading ID (as a string) rather than an array.
type NotDynReading struct {
	Readings map[string]VibrationReadingDetailedOrSimple
}

// VibrationReadingDetailedOrSimple holds whichever shape a single
// NOT_DYN_READING map entry decoded to.
type VibrationReadingDetailedOrSimple struct {
	Detailed *VibrationReadingDetailed
	Simple   *VibrationReadingSimple
}

// NotDynTemp is the NOT_DYN_TEMP notification: Data is a map keyed by ID.
type NotDynTemp struct {
	Readings map[string]TemperatureReading
}

// NotDynBatt is the NOT_DYN_BATT notification: Data is a map keyed by ID.
type NotDynBatt struct {
	Readings map[string]BatteryReading
}

// decodeVibrationList decodes Data as an array of readings, preferring the
// detailed shape (valid when the item decodes cleanly as detailed and at
// least one of X/Y/Z is a non-empty numeric sample array; see
// tryDecodeDetailed) and falling back to the simple shape otherwise, per
// spec.md §4.2's RTN_DYN_READINGS dispatch rule.
func decodeVibrationList(data json.RawMessage) (RtnDynReadings, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return RtnDynReadings{}, err
	}
	out := RtnDynReadings{}
	for _, item := range raw {
		if detailed, ok := tryDecodeDetailed(item); ok {
			out.Detailed = append(out.Detailed, detailed)
			continue
		}
		var simple VibrationReadingSimple
		if err := json.Unmarshal(item, &simple); err != nil {
			return RtnDynReadings{}, err
		}
		out.Simple = append(out.Simple, simple)
	}
	return out, nil
}

// tryDecodeDetailed reports whether item is a detailed vibration reading: it
// must unmarshal cleanly into VibrationReadingDetailed AND carry at least one
// non-empty sample array, which is what distinguishes it from the simple
// shape (whose X/Y/Z are strings, not arrays, and would fail to unmarshal
// into []float64 in the first place).
func tryDecodeDetailed(item json.RawMessage) (VibrationReadingDetailed, bool) {
	var d VibrationReadingDetailed
	if err := json.Unmarshal(item, &d); err != nil {
		return VibrationReadingDetailed{}, false
	}
	if len(d.X) == 0 && len(d.Y) == 0 && len(d.Z) == 0 {
		return VibrationReadingDetailed{}, false
	}
	return d, true
}

func decodeVibrationMapEntry(item json.RawMessage) (VibrationReadingDetailedOrSimple, error) {
	if d, ok := tryDecodeDetailed(item); ok {
		return VibrationReadingDetailedOrSimple{Detailed: &d}, nil
	}
	var s VibrationReadingSimple
	if err := json.Unmarshal(item, &s); err != nil {
		return VibrationReadingDetailedOrSimple{}, err
	}
	return VibrationReadingDetailedOrSimple{Simple: &s}, nil
}
