package readingstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
)

func TestReplaceSensors_WholeListReplacement(t *testing.T) {
	s := NewStore()
	s.ReplaceSensors("g1", []gatewayproto.Sensor{{Serial: 1}, {Serial: 2}})
	require.Len(t, s.Sensors("g1"), 2)

	s.ReplaceSensors("g1", []gatewayproto.Sensor{{Serial: 3}})
	require.Equal(t, []gatewayproto.Sensor{{Serial: 3}}, s.Sensors("g1"))
}

func TestUpsertBattery_NewerOverwritesOlder(t *testing.T) {
	s := NewStore()
	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 7, Serial: "99", Time: "t0", Batt: 80})
	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 8, Serial: "99", Time: "t0", Batt: 79})
	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 7, Serial: "99", Time: "t1", Batt: 77})

	batt := s.Battery("g1")
	require.Len(t, batt, 2)
	require.Equal(t, 77, batt["7"].Batt)
	require.Equal(t, 79, batt["8"].Batt)
}

func TestUpsertVibrationDetailed_MaterializesSimpleView(t *testing.T) {
	s := NewStore()
	s.UpsertVibrationDetailed("g1", gatewayproto.VibrationReadingDetailed{
		ID: 1, Serial: "99", Time: "t", Xpk: 1.5, Ypk: 2.5, Zpk: 3.5,
	})

	simple := s.Vibration("g1")["1"]
	require.Equal(t, "1.5", simple.X)
	require.Equal(t, "2.5", simple.Y)
	require.Equal(t, "3.5", simple.Z)

	detailed := s.VibrationDetailed("g1")["1"]
	require.Equal(t, 1.5, detailed.Xpk)
}

func TestMutation_ProducesFreshMapReference(t *testing.T) {
	s := NewStore()
	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 1, Serial: "1", Batt: 50})
	before := s.Battery("g1")

	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 2, Serial: "2", Batt: 60})
	after := s.Battery("g1")

	require.Len(t, before, 1, "the map captured before the second upsert must not observe it")
	require.Len(t, after, 2)
}

func TestFilterBatteryBySerial_NormalizesNumericAndString(t *testing.T) {
	s := NewStore()
	s.UpsertBattery("g1", gatewayproto.BatteryReading{ID: 1, Serial: "99", Batt: 50})

	// A reading whose Serial arrived as a JSON number.
	var numeric gatewayproto.BatteryReading
	require.NoError(t, json.Unmarshal([]byte(`{"ID":2,"Serial":101,"Batt":40}`), &numeric))
	s.UpsertBattery("g1", numeric)

	require.Len(t, s.FilterBatteryBySerial("g1", "99"), 1)
	require.Len(t, s.FilterBatteryBySerial("g1", "100"), 0)
	require.Len(t, s.FilterBatteryBySerial("g1", "101"), 1)
}
