package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

	redacted = "[redacted]"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders each record as one flat line: nested groups become
// dotted keys, durations become *_ms integers and sensitive keys are masked.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.cfg.level.Level()
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	ts := r.Time.UTC()
	fields := make(map[string]any, 16)
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		addField(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(fields, h.prefix, a)
		return true
	})
	for _, a := range MetaFrom(ctx).attrs() {
		if _, set := fields[a.Key]; !set {
			addField(fields, "", a)
		}
	}

	if rid, _ := fields["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			fields["rid"] = short
			if h.cfg.format == formatJSON {
				fields["rid_full"] = rid
			}
		}
	}
	if ev, _ := fields["event"].(string); ev == "" {
		// Equivalent to cmp.Or(r.Message, "unknown"); cmp.Or needs Go 1.22.
		if r.Message != "" {
			fields["event"] = r.Message
		} else {
			fields["event"] = "unknown"
		}
	}
	if comp, _ := fields["component"].(string); comp == "" {
		fields["component"] = "app"
	}
	normalizeEnums(fields)

	var (
		line []byte
		err  error
	)
	if h.cfg.format == formatJSON {
		line, err = jsonLine(fields, h.cfg.keyOrder)
	} else {
		line = kvLine(fields, h.cfg.keyOrder)
	}
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

// addField flattens attr under prefix and stores each leaf value. Empty values
// are dropped.
func addField(fields map[string]any, prefix string, attr slog.Attr) {
	key := prefix + attr.Key
	val := attr.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		if attr.Key != "" {
			key += "."
		}
		for _, child := range val.Group() {
			addField(fields, key, child)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	key, v, ok := leafValue(key, val)
	if !ok {
		return
	}
	if isSensitiveKey(key) {
		v = redactValue(v)
	}
	fields[key] = v
}

func leafValue(key string, val slog.Value) (string, any, bool) {
	var v any
	switch val.Kind() {
	case slog.KindString:
		v = strings.TrimSpace(val.String())
	case slog.KindBool:
		v = val.Bool()
	case slog.KindInt64:
		v = val.Int64()
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			v = int64(u)
		} else {
			v = u
		}
	case slog.KindFloat64:
		v = val.Float64()
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		v = val.Time().UTC().Format(time.RFC3339Nano)
	default:
		switch x := val.Any().(type) {
		case nil:
			return key, nil, false
		case time.Duration:
			return durationKey(key), RoundMS(x).Milliseconds(), true
		case error:
			v = x.Error()
		case fmt.Stringer:
			v = x.String()
		default:
			v = fmt.Sprint(x)
		}
	}
	if s, ok := v.(string); ok && s == "" {
		return key, nil, false
	}
	return key, v, true
}

// durationKey renames duration fields so the unit is part of the key.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// normalizeEnums lower-cases known status values and drops outcomes outside
// the fixed vocabulary.
func normalizeEnums(fields map[string]any) {
	if s, ok := fields["status"].(string); ok {
		if mapped, valid := normalizeStatus(s); valid {
			fields["status"] = mapped
		}
	}
	if o, ok := fields["outcome"].(string); ok {
		if mapped, valid := normalizeOutcome(o); valid {
			fields["outcome"] = mapped
		} else {
			delete(fields, "outcome")
		}
	}
}

// orderedKeys lists the keys named in order first, then the rest sorted.
func orderedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := fields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	head := len(keys)
	for k := range fields {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[head:])
	return keys
}

func jsonLine(fields map[string]any, order []string) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range orderedKeys(fields, order) {
		data, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func kvLine(fields map[string]any, order []string) []byte {
	var b strings.Builder
	for i, k := range orderedKeys(fields, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		s := fmt.Sprint(fields[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		b.WriteString(s)
	}
	return []byte(b.String())
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

// isSensitiveKey reports whether values under key must never reach log sinks.
func isSensitiveKey(key string) bool {
	leaf := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		leaf = key[i+1:]
	}
	_, ok := sensitiveKeys[strings.ToLower(leaf)]
	return ok
}

func redactValue(val any) any {
	s, ok := val.(string)
	if !ok || s == "" {
		return redacted
	}
	// Keep a short suffix so operators can correlate records.
	r := []rune(s)
	if len(r) <= 8 {
		return redacted
	}
	return redacted + "…" + string(r[len(r)-4:])
}
