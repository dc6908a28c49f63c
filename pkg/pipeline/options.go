package pipeline

// OptionKind identifies the stage a per-request option belongs to.
type OptionKind int

const (
	// OptionAuth carries authentication options (scopes, claims).
	OptionAuth OptionKind = iota
	// OptionRetry carries retry policy overrides.
	OptionRetry
	// OptionRedirect carries redirect policy overrides.
	OptionRedirect
	// OptionCompression carries compression overrides.
	OptionCompression
	// OptionChaos carries fault-injection overrides.
	OptionChaos
	// OptionODataQuery carries OData query rewrite overrides.
	OptionODataQuery
)

// String returns the option kind name.
func (k OptionKind) String() string {
	switch k {
	case OptionAuth:
		return "auth"
	case OptionRetry:
		return "retry"
	case OptionRedirect:
		return "redirect"
	case OptionCompression:
		return "compression"
	case OptionChaos:
		return "chaos"
	case OptionODataQuery:
		return "odata_query"
	default:
		return "unknown"
	}
}

// Option is a per-request option value. Option values are treated as
// immutable once attached; stages copy before deriving new values.
type Option interface {
	Kind() OptionKind
}

// Options is the request context: a typed map from option kind to value.
type Options map[OptionKind]Option

// Get returns the option of the given kind.
func (o Options) Get(kind OptionKind) (Option, bool) {
	if o == nil {
		return nil, false
	}
	opt, ok := o[kind]
	return opt, ok
}

// Clone returns a shallow copy of the map.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}
