package logger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat uint8

const (
	formatJSON logFormat = iota
	formatKV
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type handlerConfig struct {
	level    slog.Leveler
	writer   *lineWriter
	format   logFormat
	keyOrder []string
}

// lineHandler renders each record as one JSON object or key=value line.
// Keys listed in keyOrder lead in that order; the rest follow sorted.
type lineHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset record
	group  string
}

func newLineHandler(cfg handlerConfig) *lineHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &lineHandler{cfg: cfg, rank: rank}
}

// Enabled reports whether level passes the configured minimum.
func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle renders r with the context's update meta and queues the line.
func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	asJSON := h.cfg.format == formatJSON

	rec := make(record, len(h.preset)+r.NumAttrs()+8)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeLayout)
	rec["level"] = levelName(r.Level)
	if asJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	maps.Copy(rec, h.preset)
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.group, a)
		return true
	})
	metaFrom(ctx).fill(rec)
	rec.finish(r.Message, asJSON)

	return h.cfg.writer.Write(h.encode(rec))
}

// WithAttrs returns a copy of h that adds attrs to every record.
func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.preset = make(record, len(h.preset)+len(attrs))
	maps.Copy(clone.preset, h.preset)
	for _, a := range attrs {
		clone.preset.add(h.group, a)
	}
	return &clone
}

// WithGroup returns a copy of h that prefixes later keys with name.
func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func (h *lineHandler) encode(rec record) []byte {
	keys := slices.Collect(maps.Keys(rec))
	slices.SortFunc(keys, func(a, b string) int {
		ra, okA := h.rank[a]
		rb, okB := h.rank[b]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		}
		return strings.Compare(a, b)
	})
	buf := make([]byte, 0, 256)
	if h.cfg.format == formatJSON {
		buf = appendJSON(buf, keys, rec)
	} else {
		buf = appendKV(buf, keys, rec)
	}
	return append(buf, '\n')
}

// record holds the flattened fields of one log line.
type record map[string]any

func (rec record) setDefault(key string, val any) {
	if s, ok := val.(string); ok && s == "" {
		return
	}
	if _, ok := rec[key]; !ok {
		rec[key] = val
	}
}

// add flattens a (possibly grouped) attribute into dotted keys.
func (rec record) add(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := plainValue(key, a.Value); ok {
		rec[k] = v
	}
}

// finish fills the mandatory fields and drops empty ones.
func (rec record) finish(msg string, full bool) {
	if rid, _ := rec["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			if full {
				rec.setDefault("rid_full", rid)
			}
			rec["rid"] = short
		}
	}
	if ev, _ := rec["event"].(string); ev == "" {
		rec["event"] = cmp.Or(msg, "unknown")
	}
	if c, _ := rec["component"].(string); c == "" {
		rec["component"] = "app"
	}
	if s, _ := rec["status"].(string); s != "" {
		rec["status"] = strings.ToLower(s)
	}
	if o, _ := rec["outcome"].(string); o != "" {
		if o = strings.ToLower(o); knownStatus[o] {
			rec["outcome"] = o
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if v == nil {
			delete(rec, k)
		} else if s, ok := v.(string); ok && s == "" {
			delete(rec, k)
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// plainValue converts v to a JSON friendly value. Durations become whole
// milliseconds under a key ending in _ms.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	switch {
	case strings.HasSuffix(key, "_ms"):
		return key
	case key == "duration":
		return "duration_ms"
	}
	return key + "_ms"
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func appendJSON(buf []byte, keys []string, rec record) []byte {
	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendJSONString(buf, k)
		buf = append(buf, ':')
		switch v := rec[k].(type) {
		case string:
			buf = appendJSONString(buf, v)
		case bool:
			buf = strconv.AppendBool(buf, v)
		case int64:
			buf = strconv.AppendInt(buf, v, 10)
		case uint64:
			buf = strconv.AppendUint(buf, v, 10)
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				buf = appendJSONString(buf, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
			}
		default:
			buf = appendJSONString(buf, fmt.Sprint(v))
		}
	}
	return append(buf, '}')
}

func appendJSONString(buf []byte, s string) []byte {
	quoted, err := json.Marshal(s)
	if err != nil {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, quoted...)
}

func appendKV(buf []byte, keys []string, rec record) []byte {
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		s := kvString(rec[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	}
	return buf
}

func kvString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
