package observability

const (
	AttrServiceName      = "service.name"
	AttrServiceVersion   = "service.version"
	AttrSessionID        = "session.id"
	AttrAgentURL         = "agent.url"
	AttrDispatchMode     = "dispatch.mode"
	AttrEventKind        = "event.kind"
	AttrErrorType        = "error.type"
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	SpanHTTPRequest     = "http.request"
	SpanSessionDispatch = "session.dispatch"
	SpanCardFetch       = "agent.card_fetch"

	DefaultServiceName  = "agentlens"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
