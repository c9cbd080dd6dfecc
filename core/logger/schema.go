package logger

// knownStatus lists the values accepted for the outcome field; status keeps
// whatever the caller wrote, lower-cased.
var knownStatus = map[string]bool{
	"ok":           true,
	"fail":         true,
	"skip":         true,
	"retry":        true,
	"rate_limited": true,
	"cancelled":    true,
}

// defaultKeyOrder leads with correlation and update ids; errors trail.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"kind",
	"session_key",
	"stage",
	"route",
	"scene",
	"step",
	"action",
	"method",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"wait_ms",
	"attempts",
	"messages",
	"acks",
	"count",
	"limit",
	"window_ms",
	"payload",
	"lang",
	"locale",
	"username",
	"pack",
	"mode",
	"driver",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"incident_id",
	"err",
	"err_code",
	"pending_count",
}
