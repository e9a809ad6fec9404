package feed

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `timestamp,hour,day_of_week,pump_id,demand_m3h,flow_m3h,power_kw,status,tariff_fcfa_kwh,tariff_type,energy_cost_fcfa,penalty_fcfa,total_cost_fcfa,total_power_kw,subscribed_power_kw,power_exceeded,leak_detected
2026-01-01 00:00:00,0,3,P1,20,20,25,ON,75,offpeak,1875,0,1875,25,150,False,False
2026-01-01 00:00:00,0,3,P2,20,0,0,OFF,75,offpeak,0,0,0,25,150,False,False
2026-01-01 01:00:00,1,3,P1,100,60,80,ON,75,offpeak,6000,500,6500,160,150,True,True
2026-01-01 01:00:00,1,3,P2,100,40,80,ON,75,offpeak,6000,500,6500,160,150,True,False
2026-01-02 00:00:00,0,4,P1,30,30,35,ON,75,offpeak,2625,0,2625,35,150,False,False
2026-01-02 00:00:00,0,4,P2,30,0,0,OFF,75,offpeak,0,0,0,35,150,False,False
`

func TestReadAggregates(t *testing.T) {
	f, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Rows, 6)
	assert.True(t, f.Rows[2].LeakDetected)
	assert.True(t, f.Rows[2].PowerExceeded)
	assert.False(t, f.Rows[1].On)

	hours := f.Hours()
	require.Len(t, hours, 3)
	assert.Equal(t, 160.0, hours[1].Energy)
	assert.Equal(t, 1000.0, hours[1].Penalty)
	assert.Equal(t, 13000.0, hours[1].Cost)
	assert.Equal(t, 2, hours[1].Active)

	assert.Equal(t, []float64{20, 100, 30}, []float64(f.Demand()))
	assert.Equal(t, []float64{25, 100}, []float64(f.DemandProfile()))

	base := f.Baseline()
	require.Len(t, base, 3)
	assert.Equal(t, 2, base[2].Hour)
	assert.Equal(t, 2625.0, base[2].Cost)
	assert.Equal(t, 35.0, base[2].Energy)
}

func TestFrom(t *testing.T) {
	f, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	sub := f.From(1)
	assert.Len(t, sub.Rows, 4)
	assert.Equal(t, []float64{100, 30}, []float64(sub.Demand()))
	assert.Equal(t, 0, sub.Baseline()[0].Hour)
	assert.Same(t, f, f.From(12))
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Read(strings.NewReader(strings.Join(Header, ",") + "\n"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Read(strings.NewReader("timestamp,pump_id\n"))
	assert.ErrorContains(t, err, "missing column")

	bad := "timestamp,pump_id,demand_m3h,power_kw,total_cost_fcfa\n2026-01-01 00:00:00,P1,abc,1,1\n"
	_, err = Read(strings.NewReader(bad))
	assert.ErrorContains(t, err, "line 2")

	badTime := "timestamp,pump_id,demand_m3h,power_kw,total_cost_fcfa\nyesterday,P1,1,1,1\n"
	_, err = Read(strings.NewReader(badTime))
	assert.ErrorContains(t, err, "timestamp")
}

func TestReadDerivesHourFromTimestamp(t *testing.T) {
	in := "timestamp,pump_id,demand_m3h,power_kw,total_cost_fcfa\n2026-01-04T07:00:00Z,P1,10,5,550\n"
	f, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 7, f.Rows[0].Hour)
	assert.Equal(t, 6, f.Rows[0].DayOfWeek, "sunday")
}

func TestWriteReadRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rows := []Row{{
		Timestamp: ts, Hour: 8, DayOfWeek: 3, PumpID: "P1", Demand: 42.5, Flow: 42.5,
		Power: 40.1, On: true, Tariff: 110, Peak: true, EnergyCost: 4411, TotalCost: 4411,
		TotalPower: 40.1, SubscribedPower: 150,
	}}
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, WriteFile(path, rows))

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Rows, 1)
	assert.Equal(t, rows[0], f.Rows[0])
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Equal(t, strings.Join(Header, ",")+"\n", buf.String())
}
