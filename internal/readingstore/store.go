// Package readingstore holds the in-memory, per-gateway reading state fed
// by the Session dispatcher: the current sensor list and the upserted
// battery, temperature, and vibration reading maps.
package readingstore

import (
	"sync"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

// gatewayState is the per-gateway bucket: sensors plus the four reading maps.
type gatewayState struct {
	sensors           []gatewayproto.Sensor
	vibration         map[string]gatewayproto.VibrationReadingSimple
	vibrationDetailed map[string]gatewayproto.VibrationReadingDetailed
	temperature       map[string]gatewayproto.TemperatureReading
	battery           map[string]gatewayproto.BatteryReading
}

func newGatewayState() *gatewayState {
	return &gatewayState{
		vibration:         make(map[string]gatewayproto.VibrationReadingSimple),
		vibrationDetailed: make(map[string]gatewayproto.VibrationReadingDetailed),
		temperature:       make(map[string]gatewayproto.TemperatureReading),
		battery:           make(map[string]gatewayproto.BatteryReading),
	}
}

// Store is the per-gateway keyed reading store of spec.md §4.3.
type Store struct {
	mu        sync.RWMutex
	gateways  map[string]*gatewayState
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{gateways: make(map[string]*gatewayState)}
}

func (s *Store) state(gatewayID string) *gatewayState {
	g, ok := s.gateways[gatewayID]
	if !ok {
		g = newGatewayState()
		s.gateways[gatewayID] = g
	}
	return g
}

// ReplaceSensors replaces the whole sensor list for gatewayID (RTN_DYN is
// authoritative, per spec.md §4.3).
func (s *Store) ReplaceSensors(gatewayID string, sensors []gatewayproto.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.state(gatewayID)
	g.sensors = append([]gatewayproto.Sensor(nil), sensors...)
}

// Sensors returns the current sensor snapshot for gatewayID.
func (s *Store) Sensors(gatewayID string) []gatewayproto.Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	return append([]gatewayproto.Sensor(nil), g.sensors...)
}

// UpsertVibration upserts a simple vibration reading by ID, producing a
// fresh map reference for change propagation (spec.md §4.3).
func (s *Store) UpsertVibration(gatewayID string, reading gatewayproto.VibrationReadingSimple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.state(gatewayID)
	g.vibration = cloneSimpleMap(g.vibration)
	g.vibration[idKey(reading.ID)] = reading
}

// UpsertVibrationDetailed upserts a detailed vibration reading by ID and
// also materializes the simple-vibration view from its peak magnitudes
// (testable property B2).
func (s *Store) UpsertVibrationDetailed(gatewayID string, reading gatewayproto.VibrationReadingDetailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.state(gatewayID)
	g.vibrationDetailed = cloneDetailedMap(g.vibrationDetailed)
	g.vibrationDetailed[idKey(reading.ID)] = reading

	g.vibration = cloneSimpleMap(g.vibration)
	g.vibration[idKey(reading.ID)] = reading.ToSimple()
}

// UpsertTemperature upserts a temperature reading by ID.
func (s *Store) UpsertTemperature(gatewayID string, reading gatewayproto.TemperatureReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.state(gatewayID)
	g.temperature = cloneTemperatureMap(g.temperature)
	g.temperature[idKey(reading.ID)] = reading
}

// UpsertBattery upserts a battery reading by ID.
func (s *Store) UpsertBattery(gatewayID string, reading gatewayproto.BatteryReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.state(gatewayID)
	g.battery = cloneBatteryMap(g.battery)
	g.battery[idKey(reading.ID)] = reading
}

// Vibration returns the current simple-vibration reading map for gatewayID.
func (s *Store) Vibration(gatewayID string) map[string]gatewayproto.VibrationReadingSimple {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	return g.vibration
}

// VibrationDetailed returns the current detailed-vibration reading map.
func (s *Store) VibrationDetailed(gatewayID string) map[string]gatewayproto.VibrationReadingDetailed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	return g.vibrationDetailed
}

// Temperature returns the current temperature reading map.
func (s *Store) Temperature(gatewayID string) map[string]gatewayproto.TemperatureReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	return g.temperature
}

// Battery returns the current battery reading map.
func (s *Store) Battery(gatewayID string) map[string]gatewayproto.BatteryReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	return g.battery
}

// FilterBatteryBySerial returns battery readings whose Serial normalizes to
// serial, comparing both sides as strings (testable property B3).
func (s *Store) FilterBatteryBySerial(gatewayID, serial string) []gatewayproto.BatteryReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	var out []gatewayproto.BatteryReading
	for _, r := range g.battery {
		if gatewayproto.NormalizeSerial(string(r.Serial)) == gatewayproto.NormalizeSerial(serial) {
			out = append(out, r)
		}
	}
	return out
}

// FilterTemperatureBySerial is the Temperature analogue of
// FilterBatteryBySerial.
func (s *Store) FilterTemperatureBySerial(gatewayID, serial string) []gatewayproto.TemperatureReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	var out []gatewayproto.TemperatureReading
	for _, r := range g.temperature {
		if gatewayproto.NormalizeSerial(string(r.Serial)) == gatewayproto.NormalizeSerial(serial) {
			out = append(out, r)
		}
	}
	return out
}

// FilterVibrationBySerial is the Vibration analogue of
// FilterBatteryBySerial.
func (s *Store) FilterVibrationBySerial(gatewayID, serial string) []gatewayproto.VibrationReadingSimple {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gateways[gatewayID]
	if !ok {
		return nil
	}
	var out []gatewayproto.VibrationReadingSimple
	for _, r := range g.vibration {
		if gatewayproto.NormalizeSerial(string(r.Serial)) == gatewayproto.NormalizeSerial(serial) {
			out = append(out, r)
		}
	}
	return out
}

func idKey(id int) string {
	return gatewayproto.NormalizeSerial(id)
}

func cloneSimpleMap(m map[string]gatewayproto.VibrationReadingSimple) map[string]gatewayproto.VibrationReadingSimple {
	out := make(map[string]gatewayproto.VibrationReadingSimple, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneDetailedMap(m map[string]gatewayproto.VibrationReadingDetailed) map[string]gatewayproto.VibrationReadingDetailed {
	out := make(map[string]gatewayproto.VibrationReadingDetailed, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTemperatureMap(m map[string]gatewayproto.TemperatureReading) map[string]gatewayproto.TemperatureReading {
	out := make(map[string]gatewayproto.TemperatureReading, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBatteryMap(m map[string]gatewayproto.BatteryReading) map[string]gatewayproto.BatteryReading {
	out := make(map[string]gatewayproto.BatteryReading, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
