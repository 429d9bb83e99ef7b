package model

// ConnectionRecord is one connection's raw field values keyed by feature
// name, as submitted by a caller or read from a dataset row.
type ConnectionRecord map[string]string

// Field implements features.FieldSource.
func (r ConnectionRecord) Field(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

// FormFields are the fields the prediction form submits.
var FormFields = []string{
	"duration",
	"src_bytes",
	"dst_bytes",
	"src_pkts",
	"dst_pkts",
	"proto",
	"service",
	"conn_state",
	"http_request_body_len",
	"http_response_body_len",
	"http_status_code",
}
