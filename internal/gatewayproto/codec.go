package gatewayproto

import (
	"encoding/json"
	"fmt"
)

// DecodeInbound implements the two-step validate of spec.md §4.2:
//  1. parse JSON and validate the envelope shape;
//  2. attempt typed validation against the response union.
//
// The envelope is always returned when step 1 succeeds (so the generic
// "message" event can still observe forward-compatible or unknown Types);
// payload is non-nil only when Type matched a known response/notification.
func DecodeInbound(raw []byte) (*Envelope, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := env.Validate(); err != nil {
		return &env, nil, err
	}
	if !IsResponseType(env.Type) {
		// Forward-compatible: deliver as a bare envelope, no typed payload.
		return &env, nil, nil
	}

	payload, err := decodeTypedPayload(env.Type, env.Data)
	if err != nil {
		// A response Type we recognize but whose Data doesn't match the
		// expected shape is a schema error, not fatal to the session.
		return &env, nil, fmt.Errorf("%w: %s: %v", ErrSchema, env.Type, err)
	}
	return &env, payload, nil
}

func decodeTypedPayload(t MessageType, data json.RawMessage) (interface{}, error) {
	switch t {
	case TypeRtnLogin:
		var v RtnLogin
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeRtnErr:
		var v RtnErr
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeRtnDyn:
		var sensors []Sensor
		if err := json.Unmarshal(data, &sensors); err != nil {
			return nil, err
		}
		return RtnDyn{Sensors: sensors}, nil

	case TypeRtnDynReadings:
		return decodeVibrationList(data)

	case TypeRtnDynTemps:
		var readings []TemperatureReading
		if err := json.Unmarshal(data, &readings); err != nil {
			return nil, err
		}
		return RtnDynTemps{Readings: readings}, nil

	case TypeRtnDynBatts:
		var readings []BatteryReading
		if err := json.Unmarshal(data, &readings); err != nil {
			return nil, err
		}
		return RtnDynBatts{Readings: readings}, nil

	case TypeNotDynConn:
		var v NotDynConn
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeNotApConn:
		var v NotApConn
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeNotDynReadingStarted:
		var v NotDynReadingStarted
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil

	case TypeNotDynReading:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := NotDynReading{Readings: make(map[string]VibrationReadingDetailedOrSimple, len(raw))}
		for id, item := range raw {
			entry, err := decodeVibrationMapEntry(item)
			if err != nil {
				return nil, err
			}
			out.Readings[id] = entry
		}
		return out, nil

	case TypeNotDynTemp:
		var raw map[string]TemperatureReading
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return NotDynTemp{Readings: raw}, nil

	case TypeNotDynBatt:
		var raw map[string]BatteryReading
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return NotDynBatt{Readings: raw}, nil

	default:
		return nil, fmt.Errorf("unhandled response type %q", t)
	}
}
