// Package feed reads and writes the per-pump pumping records of a farm and
// aggregates them into hourly demand and baseline cost.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/agriwater/core/model"
)

// TimeLayout is the timestamp format of the feed.
const TimeLayout = "2006-01-02 15:04:05"

// ErrEmpty is returned when a feed holds no record.
var ErrEmpty = errors.New("feed has no records")

// Header lists the feed columns in file order.
var Header = []string{
	"timestamp", "hour", "day_of_week", "pump_id", "demand_m3h", "flow_m3h",
	"power_kw", "status", "tariff_fcfa_kwh", "tariff_type", "energy_cost_fcfa",
	"penalty_fcfa", "total_cost_fcfa", "total_power_kw", "subscribed_power_kw",
	"power_exceeded", "leak_detected",
}

// Row is the state of one pump during one hour.
type Row struct {
	Timestamp       time.Time
	Hour            int
	DayOfWeek       int // Monday is 0
	PumpID          string
	Demand          float64
	Flow            float64
	Power           float64
	On              bool
	Tariff          float64
	Peak            bool
	EnergyCost      float64
	Penalty         float64 // share of the hour penalty carried by this pump
	TotalCost       float64
	TotalPower      float64
	SubscribedPower float64
	PowerExceeded   bool
	LeakDetected    bool
}

// Hour aggregates the rows sharing a timestamp.
type Hour struct {
	Timestamp time.Time
	HourOfDay int
	Demand    float64
	Energy    float64
	Penalty   float64
	Cost      float64
	Active    int
}

// Feed is an ordered set of records.
type Feed struct {
	Rows []Row
}

// ReadFile loads a feed from a CSV file.
func ReadFile(path string) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV records. Columns are matched by header name and unknown
// columns are ignored.
func Read(r io.Reader) (*Feed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, h := range head {
		cols[h] = i
	}
	for _, req := range []string{"timestamp", "pump_id", "demand_m3h", "power_kw", "total_cost_fcfa"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("missing column %q", req)
		}
	}

	feed := &Feed{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		feed.Rows = append(feed.Rows, row)
	}
	if len(feed.Rows) == 0 {
		return nil, ErrEmpty
	}
	return feed, nil
}

type fields struct {
	rec  []string
	cols map[string]int
	err  error
}

func (f *fields) str(name string) string {
	i, ok := f.cols[name]
	if !ok || i >= len(f.rec) {
		return ""
	}
	return f.rec[i]
}

func (f *fields) num(name string) float64 {
	s := f.str(name)
	if s == "" || f.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func (f *fields) integer(name string) int {
	return int(f.num(name))
}

func (f *fields) flag(name string) bool {
	switch f.str(name) {
	case "True", "true", "1":
		return true
	}
	return false
}

func parseRow(rec []string, cols map[string]int) (Row, error) {
	f := &fields{rec: rec, cols: cols}
	ts, err := parseTime(f.str("timestamp"))
	if err != nil {
		return Row{}, fmt.Errorf("timestamp: %w", err)
	}
	row := Row{
		Timestamp:       ts,
		Hour:            ts.Hour(),
		DayOfWeek:       weekday(ts),
		PumpID:          f.str("pump_id"),
		Demand:          f.num("demand_m3h"),
		Flow:            f.num("flow_m3h"),
		Power:           f.num("power_kw"),
		On:              f.str("status") == "ON",
		Tariff:          f.num("tariff_fcfa_kwh"),
		Peak:            f.str("tariff_type") == "peak",
		EnergyCost:      f.num("energy_cost_fcfa"),
		Penalty:         f.num("penalty_fcfa"),
		TotalCost:       f.num("total_cost_fcfa"),
		TotalPower:      f.num("total_power_kw"),
		SubscribedPower: f.num("subscribed_power_kw"),
		PowerExceeded:   f.flag("power_exceeded"),
		LeakDetected:    f.flag("leak_detected"),
	}
	if _, ok := cols["hour"]; ok {
		row.Hour = f.integer("hour")
	}
	if _, ok := cols["day_of_week"]; ok {
		row.DayOfWeek = f.integer("day_of_week")
	}
	if f.err != nil {
		return Row{}, f.err
	}
	if row.PumpID == "" {
		return Row{}, errors.New("pump_id is empty")
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Hours groups rows by timestamp in order of first appearance.
func (f *Feed) Hours() []Hour {
	var hours []Hour
	index := make(map[time.Time]int)
	for _, r := range f.Rows {
		i, ok := index[r.Timestamp]
		if !ok {
			i = len(hours)
			index[r.Timestamp] = i
			hours = append(hours, Hour{Timestamp: r.Timestamp, HourOfDay: r.Hour, Demand: r.Demand})
		}
		h := &hours[i]
		h.Energy += r.Power
		h.Penalty += r.Penalty
		h.Cost += r.TotalCost
		if r.On {
			h.Active++
		}
	}
	return hours
}

// From returns the feed starting at the first hour whose hour of day is
// hourOfDay. The whole feed is returned when no hour matches.
func (f *Feed) From(hourOfDay int) *Feed {
	for i, r := range f.Rows {
		if r.Hour == hourOfDay {
			return &Feed{Rows: f.Rows[i:]}
		}
	}
	return f
}

// Demand is the hourly demand series in feed order.
func (f *Feed) Demand() model.DemandForecast {
	hours := f.Hours()
	d := make(model.DemandForecast, len(hours))
	for i, h := range hours {
		d[i] = h.Demand
	}
	return d
}

// DemandProfile is the mean demand per hour of day over the whole feed,
// indexed by hour of day. Hours absent from the feed are skipped.
func (f *Feed) DemandProfile() model.DemandForecast {
	var byHour [24][]float64
	for _, h := range f.Hours() {
		if h.HourOfDay >= 0 && h.HourOfDay < 24 {
			byHour[h.HourOfDay] = append(byHour[h.HourOfDay], h.Demand)
		}
	}
	var profile model.DemandForecast
	for _, vals := range byHour {
		if len(vals) == 0 {
			continue
		}
		profile = append(profile, stat.Mean(vals, nil))
	}
	return profile
}

// Baseline is the recorded non-optimized operation, one entry per hour.
func (f *Feed) Baseline() []model.BaselineHour {
	hours := f.Hours()
	out := make([]model.BaselineHour, len(hours))
	for i, h := range hours {
		out[i] = model.BaselineHour{
			Hour:    i,
			Demand:  h.Demand,
			Energy:  h.Energy,
			Penalty: h.Penalty,
			Cost:    h.Cost,
		}
	}
	return out
}

// WriteFile stores rows as CSV at path.
func WriteFile(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes rows as CSV with the feed header.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		status, tariffType := "OFF", "offpeak"
		if r.On {
			status = "ON"
		}
		if r.Peak {
			tariffType = "peak"
		}
		rec := []string{
			r.Timestamp.Format(TimeLayout),
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.DayOfWeek),
			r.PumpID,
			formatFloat(r.Demand),
			formatFloat(r.Flow),
			formatFloat(r.Power),
			status,
			formatFloat(r.Tariff),
			tariffType,
			formatFloat(r.EnergyCost),
			formatFloat(r.Penalty),
			formatFloat(r.TotalCost),
			formatFloat(r.TotalPower),
			formatFloat(r.SubscribedPower),
			formatBool(r.PowerExceeded),
			formatBool(r.LeakDetected),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
