package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"priceregistry/internal/partition"
	"priceregistry/internal/translit"
)

type dataQuery struct {
	DatumPocetak       string
	DatumZavrsetak     string
	OpstinaID          string
	KoID               string
	VrsteNepokretnosti string
}

type dataResponse struct {
	D *struct {
		Ugovori json.RawMessage
	} `json:"d"`
}

type contract struct {
	UID        any    `json:"uID"`
	DatumU     any    `json:"datumU"`
	PpNaziv    any    `json:"ppNaziv"`
	VPromNaziv any    `json:"vPromNaziv"`
	Cena       any    `json:"cena"`
	CenaV      any    `json:"cenaV"`
	Units      []unit `json:"n"`
}

type unit struct {
	LatLon *struct {
		Lat any
		Lon any
	} `json:"latlon"`
	Pov       any `json:"pov"`
	PID       any `json:"pID"`
	VNepNaziv any `json:"vNepNaziv"`
}

// FetchRecords runs the data query for one (region, sub-region) pair and
// flattens the answer into one row per property unit.
func (c *Client) FetchRecords(ctx context.Context, session Session, start, end, region, subRegion string) ([]partition.Row, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(defaultHeaders).
		SetHeader("Origin", c.origin).
		SetHeader("Referer", c.referer()).
		SetBody(dataQuery{
			DatumPocetak:       start,
			DatumZavrsetak:     end,
			OpstinaID:          region,
			KoID:               subRegion,
			VrsteNepokretnosti: session.FilterParam(),
		}).
		Post("/Default.aspx/Data")
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_records, err, "region", region, "sub_region", subRegion)
		return nil, &FetchError{Region: region, SubRegion: subRegion, Err: err}
	}
	if res.IsError() {
		err = fmt.Errorf("unexpected response")
		c.tel.ReportBroken(report_client_fetch_records, err, "region", region, "sub_region", subRegion, "status", res.StatusCode())
		return nil, &FetchError{Region: region, SubRegion: subRegion, Status: res.StatusCode(), Err: err}
	}

	rows, err := ParseRecords(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_records, err, "region", region, "sub_region", subRegion)
		return nil, &ParseError{Region: region, SubRegion: subRegion, Err: err}
	}
	c.tel.ReportCount(report_client_fetch_records, int64(len(rows)))
	return rows, nil
}

// ParseRecords flattens a data query response. Contracts keep the order the
// server sent them in, units keep their order within a contract. A missing or
// empty contract collection is a valid answer with no rows.
func ParseRecords(body []byte) ([]partition.Row, error) {
	var res dataResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	if res.D == nil {
		return nil, fmt.Errorf("response has no payload")
	}
	if len(res.D.Ugovori) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(res.D.Ugovori))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok {
	case nil:
		return nil, nil
	case json.Delim('['):
		// an empty collection is sometimes serialized as a list
		if dec.More() {
			return nil, fmt.Errorf("contracts are a non-empty list")
		}
		return nil, nil
	case json.Delim('{'):
	default:
		return nil, fmt.Errorf("unexpected contracts token %v", tok)
	}

	var rows []partition.Row
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var c contract
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("contract %v: %w", key, err)
		}
		for _, u := range c.Units {
			row := partition.Row{
				ContractID:          render(c.UID),
				Date:                render(c.DatumU),
				ContractType:        translit.Latin(render(c.PpNaziv)),
				ContractDescription: translit.Latin(render(c.VPromNaziv)),
				Price:               render(c.Cena),
				Currency:            render(c.CenaV),
				ObjectID:            render(u.PID),
				ObjectCategory:      translit.Latin(render(u.VNepNaziv)),
				Area:                partition.AreaMissing,
				Latitude:            render(nil),
				Longitude:           render(nil),
			}
			if !falsy(u.Pov) {
				row.Area = render(u.Pov)
			}
			if u.LatLon != nil {
				row.Latitude = render(u.LatLon.Lat)
				row.Longitude = render(u.LatLon.Lon)
			}
			rows = append(rows, row)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rows, nil
}

// render writes a decoded json scalar the way the existing data files
// spell it.
func render(v any) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case string:
		return v
	case json.Number:
		return renderNumber(v)
	case bool:
		if v {
			return "True"
		}
		return "False"
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(out)
	}
}

// renderNumber spells integers as sent and everything else as the shortest
// round-tripping float, fixed notation for decimal exponents in [-4, 16) and
// scientific notation outside, always with a fractional part. 12.50 becomes
// 12.5, 45000.0 stays 45000.0 and 0.00001 becomes 1e-05.
func renderNumber(n json.Number) string {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if text == "-0" {
			return "0"
		}
		return text
	}

	f, err := strconv.ParseFloat(text, 64)
	if math.IsInf(f, 0) {
		if f < 0 {
			return "-inf"
		}
		return "inf"
	}
	if err != nil {
		return text
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return text
	}
	if exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}

func falsy(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case json.Number:
		return strings.Trim(strings.TrimLeft(v.String(), "-"), "0.") == ""
	case bool:
		return !v
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
