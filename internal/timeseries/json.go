package timeseries

import (
	"encoding/json"
	"math"
	"time"
)

// frameJSON is the wire form of a Frame. NaN cells are encoded as null
// because encoding/json rejects NaN literals.
type frameJSON struct {
	Times   []time.Time           `json:"times"`
	Order   []string              `json:"order"`
	Columns map[string][]*float64 `json:"columns"`
}

// MarshalJSON implements json.Marshaler.
func (f *Frame) MarshalJSON() ([]byte, error) {
	out := frameJSON{
		Times:   f.times,
		Order:   f.order,
		Columns: make(map[string][]*float64, len(f.cols)),
	}

	for name, vals := range f.cols {
		enc := make([]*float64, len(vals))
		for i := range vals {
			if math.IsNaN(vals[i]) {
				continue
			}
			v := vals[i]
			enc[i] = &v
		}
		out.Columns[name] = enc
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var in frameJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	f.times = in.Times
	f.order = nil
	f.cols = make(map[string][]float64, len(in.Columns))

	for _, name := range in.Order {
		enc, ok := in.Columns[name]
		if !ok {
			continue
		}
		vals := make([]float64, len(enc))
		for i := range enc {
			if enc[i] == nil {
				vals[i] = math.NaN()
			} else {
				vals[i] = *enc[i]
			}
		}
		f.order = append(f.order, name)
		f.cols[name] = vals
	}

	return nil
}
