package recio

// TxType classifies a transaction once its Begin/Link payload has been
// parsed (spec §3). Zero value is Unknown.
type TxType int

const (
	TxUnknown TxType = iota
	TxSession
	TxRequest
	TxEsiRequest
	TxBackendRequest
)

func (t TxType) String() string {
	switch t {
	case TxSession:
		return "sess"
	case TxRequest:
		return "req"
	case TxEsiRequest:
		return "esireq"
	case TxBackendRequest:
		return "bereq"
	default:
		return "unknown"
	}
}

// ParseTxType maps the type word found in a Begin/Link payload to a
// TxType. ok is false for anything else.
func ParseTxType(word string) (TxType, bool) {
	switch word {
	case "sess":
		return TxSession, true
	case "req":
		return TxRequest, true
	case "esireq":
		return TxEsiRequest, true
	case "bereq":
		return TxBackendRequest, true
	default:
		return TxUnknown, false
	}
}

// Grouping selects the callback granularity (spec §6/glossary).
type Grouping int

const (
	GroupingRaw Grouping = iota
	GroupingVxid
	GroupingRequest
	GroupingSession
)

func (g Grouping) String() string {
	switch g {
	case GroupingRaw:
		return "raw"
	case GroupingVxid:
		return "vxid"
	case GroupingRequest:
		return "request"
	case GroupingSession:
		return "session"
	default:
		return "unknown"
	}
}

// Valid reports whether g is one of the four recognized groupings.
func (g Grouping) Valid() bool {
	return g >= GroupingRaw && g <= GroupingSession
}
