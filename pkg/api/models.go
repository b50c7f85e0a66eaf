package api

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// StationList represents the response structure from the list.php endpoint.
type StationList struct {
	OK       bool      `json:"ok"`
	License  string    `json:"license"`
	Data     string    `json:"data"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Stations []Station `json:"stations"`

	// Raw holds the response body exactly as received.
	Raw []byte `json:"-"`
}

// Station represents a single fuel station and its price information. Every
// field is a Value so that an unexpected type in one key never fails the
// whole response.
type Station struct {
	ID          Value `json:"id"`
	Name        Value `json:"name"`
	Brand       Value `json:"brand"`
	Street      Value `json:"street"`
	HouseNumber Value `json:"houseNumber"`
	PostCode    Value `json:"postCode"`
	Place       Value `json:"place"`
	Lat         Value `json:"lat"`
	Lng         Value `json:"lng"`
	Dist        Value `json:"dist"`
	Diesel      Value `json:"diesel"`
	E5          Value `json:"e5"`
	E10         Value `json:"e10"`
	IsOpen      Value `json:"isOpen"`
}

// Location returns the station coordinates. ok is false when either one is
// missing or not a number, or both are zero.
func (s *Station) Location() (lat, lng float64, ok bool) {
	lat, latOK := s.Lat.Float64()
	lng, lngOK := s.Lng.Float64()
	if !latOK || !lngOK || (lat == 0 && lng == 0) {
		return 0, 0, false
	}
	return lat, lng, true
}

// HasLocation reports whether the station carries coordinates.
func (s *Station) HasLocation() bool {
	_, _, ok := s.Location()
	return ok
}

// Open reports whether the service flagged the station as open.
func (s *Station) Open() bool {
	return s.IsOpen.String() == "true"
}

// Value is a JSON scalar kept exactly as the service sent it. A missing key,
// null and false all decode to an absent Value.
type Value struct {
	raw json.RawMessage
}

// StringValue returns a present Value holding a JSON string.
func StringValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value{raw: b}
}

// NumberValue returns a present Value holding a JSON number.
func NumberValue(f float64) Value {
	return Value{raw: json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64))}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false")) {
		v.raw = nil
		return nil
	}
	v.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Valid reports whether the value was present in the response.
func (v Value) Valid() bool {
	return v.raw != nil
}

// String returns the value as text: strings unquoted, numbers as the literal
// the service sent. Absent values return "".
func (v Value) String() string {
	if v.raw == nil {
		return ""
	}
	if v.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(v.raw, &s); err == nil {
			return s
		}
	}
	return string(v.raw)
}

// Float64 parses the value as a number. Quoted numbers are accepted.
func (v Value) Float64() (float64, bool) {
	if v.raw == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
