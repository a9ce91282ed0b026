package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	consoleTimeLayout = "15:04:05"
	maxInfoValueLen   = 120
)

// leadKeys are printed first, in this order, when present.
var leadKeys = []string{
	FieldEventType,
	FieldProgressMessage,
	FieldProgressPercent,
	"status",
	"error",
	FieldErrorKind,
	FieldErrorHint,
	FieldImpact,
	"reason",
	"chunk_count",
	"segment_count",
	"stage_duration",
	"run_duration",
}

// consoleHandler writes one header line per record followed by an indented
// line of key=value fields. Identifiers that already appear in the header
// are not repeated, and at INFO bookkeeping keys are counted rather than
// printed.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	attrs     []kv
	prefix    string
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		next.attrs = appendFlat(next.attrs, h.prefix, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendFlat(fields, h.prefix, a)
		return true
	})
	fields = lastWins(fields)

	var component, runID, stage, chunk string
	rest := fields[:0:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = f.value.String()
		case FieldRunID:
			runID = f.value.String()
		case FieldStage:
			stage = f.value.String()
		case FieldChunkIndex:
			chunk = renderValue(f.key, f.value)
		default:
			rest = append(rest, f)
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.Local().Format(consoleTimeLayout))
	fmt.Fprintf(&buf, " %-5s", levelName(r.Level))
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject := joinNonEmpty(" · ", prefixed("run ", runID), stage, prefixed("chunk ", chunk)); subject != "" {
		buf.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" | " + msg)
	if h.addSource && r.PC != 0 {
		src := r.Source()
		fmt.Fprintf(&buf, " (%s:%d)", filepath.Base(src.File), src.Line)
	}
	buf.WriteByte('\n')

	debug := r.Level < slog.LevelInfo
	if line, hidden := renderFields(rest, debug); line != "" || hidden > 0 {
		buf.WriteString("    ")
		buf.WriteString(line)
		if hidden > 0 {
			if line != "" {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "(+%d)", hidden)
		}
		buf.WriteByte('\n')
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func renderFields(fields []kv, debug bool) (string, int) {
	ordered := make([]kv, 0, len(fields))
	for _, key := range leadKeys {
		if i := slices.IndexFunc(fields, func(f kv) bool { return f.key == key }); i >= 0 {
			ordered = append(ordered, fields[i])
		}
	}
	for _, f := range fields {
		if !slices.Contains(leadKeys, f.key) {
			ordered = append(ordered, f)
		}
	}

	parts := make([]string, 0, len(ordered))
	hidden := 0
	for _, f := range ordered {
		if !debug && bookkeepingKey(f.key) {
			hidden++
			continue
		}
		value := renderValue(f.key, f.value)
		if !debug && len(value) > maxInfoValueLen && f.key != "error" {
			value = value[:maxInfoValueLen] + "…"
		}
		parts = append(parts, f.key+"="+value)
	}
	return strings.Join(parts, " "), hidden
}

func bookkeepingKey(key string) bool {
	switch key {
	case FieldRequestID, "digest", "parent_digest", "schema_version", "args":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func renderValue(key string, v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case slog.KindDuration:
		return roundDuration(v.Duration()).String()
	case slog.KindFloat64:
		if strings.HasSuffix(key, "_percent") {
			return strconv.FormatFloat(v.Float64(), 'f', 1, 64) + "%"
		}
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindInt64:
		if n := v.Int64(); strings.HasSuffix(key, "_bytes") && n >= 0 {
			return humanize.IBytes(uint64(n))
		}
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindTime:
		return v.Time().Local().Format(time.DateTime)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

func roundDuration(d time.Duration) time.Duration {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond)
	case d < time.Minute:
		return d.Round(100 * time.Millisecond)
	default:
		return d.Round(time.Second)
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func appendFlat(dst []kv, prefix string, a slog.Attr) []kv {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		next := prefix
		if a.Key != "" {
			next = prefix + a.Key + "."
		}
		for _, member := range a.Value.Group() {
			dst = appendFlat(dst, next, member)
		}
		return dst
	}
	return append(dst, kv{key: prefix + a.Key, value: a.Value})
}

// lastWins keeps the first position of each key with its latest value.
func lastWins(fields []kv) []kv {
	seen := make(map[string]int, len(fields))
	out := make([]kv, 0, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := seen[f.key]; ok {
			out[i].value = f.value
			continue
		}
		seen[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func prefixed(prefix, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return prefix + value
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := slices.DeleteFunc(parts, func(s string) bool { return strings.TrimSpace(s) == "" })
	return strings.Join(kept, sep)
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
