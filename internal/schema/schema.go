package schema

type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
)

type Column struct {
	Name string
	Kind Kind
}

// SeriesColumns: long-format export of aggregation series, one row per point.
var SeriesColumns = []Column{
	{Name: "file", Kind: String},
	{Name: "class", Kind: String},
	{Name: "window_start", Kind: Float},
	{Name: "value", Kind: Int},
}

// VerifyColumns: log verification report, one row per file.
var VerifyColumns = []Column{
	{Name: "file", Kind: String},
	{Name: "lines", Kind: Int},
	{Name: "records", Kind: Int},
	{Name: "malformed", Kind: Int},
	{Name: "unknown", Kind: Int},
	{Name: "new", Kind: Int},
	{Name: "snd", Kind: Int},
	{Name: "rcv", Kind: Int},
	{Name: "min_ts", Kind: Float},
	{Name: "max_ts", Kind: Float},
	{Name: "span_ms", Kind: Float},
	{Name: "ordered", Kind: Bool},
	{Name: "regressions", Kind: Int},
	{Name: "first_regression_line", Kind: Int},
	{Name: "max_regression_ms", Kind: Float},
	{Name: "aggregatable", Kind: Bool},
	{Name: "out_of_order", Kind: Int},
	{Name: "first_out_of_order_line", Kind: Int},
	{Name: "error", Kind: String},
}

func Header(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func SeriesHeader() []string { return Header(SeriesColumns) }

func VerifyHeader() []string { return Header(VerifyColumns) }
