package partition

import "fmt"

// AreaMissing is written in place of an empty unit area.
const AreaMissing = "-"

// Header is the column order of every partition and checkpoint file.
var Header = []string{
	"contract ID",
	"date",
	"contract type",
	"contract description",
	"contract price",
	"currency",
	"object ID",
	"object category",
	"pov",
	"latitude",
	"longitude",
}

// Row is one (contract, unit) pair. Values are kept as the registry renders
// them so that rows read back from disk compare equal to freshly fetched ones.
type Row struct {
	ContractID          string
	Date                string
	ContractType        string
	ContractDescription string
	Price               string
	Currency            string
	ObjectID            string
	ObjectCategory      string
	Area                string
	Latitude            string
	Longitude           string
}

func (r Row) values() []string {
	return []string{
		r.ContractID,
		r.Date,
		r.ContractType,
		r.ContractDescription,
		r.Price,
		r.Currency,
		r.ObjectID,
		r.ObjectCategory,
		r.Area,
		r.Latitude,
		r.Longitude,
	}
}

func rowFromValues(values []string) (Row, error) {
	if len(values) != len(Header) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(values))
	}
	return Row{
		ContractID:          values[0],
		Date:                values[1],
		ContractType:        values[2],
		ContractDescription: values[3],
		Price:               values[4],
		Currency:            values[5],
		ObjectID:            values[6],
		ObjectCategory:      values[7],
		Area:                values[8],
		Latitude:            values[9],
		Longitude:           values[10],
	}, nil
}

// Dedup drops every row that is identical in all columns to an earlier one,
// keeping first occurrences in order.
func Dedup(rows []Row) []Row {
	seen := make(map[Row]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
