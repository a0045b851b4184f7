// Package telemetry provides low-overhead span tracking for index and
// search operations, adapted from the teacher's per-request HTTP telemetry
// into an operation-scoped tracer with no HTTP dependency. Spans are
// sampled, rendered to a compact text block, and appended to a JSONL-style
// log file; aggregate counters/histograms are exported separately via
// Prometheus collectors in metrics.go.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type ctxKeyType struct{}

var (
	writerOnce sync.Once
	writerCh   chan []byte
	opCtr      uint64
	spanCtr    uint64
	sampleRate = 0.01 // 1% of operations get a full span trace by default
)

// Span is a span relative to the owning operation's start, in microseconds.
type Span struct {
	ID       string
	ParentID string
	Op       string
	StartUs  int64
	Duration int64
	Data     map[string]interface{}
}

// Trace holds the per-operation span tree.
type Trace struct {
	ID       string
	Op       string
	StartUs  int64
	Duration int64
	Spans    []Span

	startTime time.Time
	mu        sync.Mutex
	spanStack []string
}

func telemetryDir() string {
	if d := os.Getenv("FTS_TELEMETRY_DIR"); d != "" {
		return d
	}
	return filepath.Join(os.TempDir(), "fts-telemetry")
}

func initWriter() {
	writerCh = make(chan []byte, 1024)
	go func() {
		dir := telemetryDir()
		_ = os.MkdirAll(dir, 0o755)
		f, err := os.OpenFile(filepath.Join(dir, "spans.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for b := range writerCh {
			_, _ = f.Write(append(b, '\n'))
		}
	}()
}

// StartOp begins a sampled trace for a top-level operation (e.g.
// "index.upsert", "engine.search") and returns a context carrying it plus
// an end function. Unsampled operations get a near-zero-cost no-op.
func StartOp(ctx context.Context, op string) (context.Context, func()) {
	if !shouldSample() {
		return ctx, func() {}
	}
	start := time.Now()
	tr := &Trace{ID: genOpID(), Op: op, startTime: start, StartUs: 0}
	root := Span{ID: genSpanID(), Op: op, StartUs: 0}
	tr.Spans = append(tr.Spans, root)
	tr.spanStack = append(tr.spanStack, root.ID)
	ctx2 := context.WithValue(ctx, ctxKeyType{}, tr)
	return ctx2, func() {
		tr.mu.Lock()
		tr.Duration = time.Since(start).Microseconds()
		b := renderTrace(tr)
		tr.mu.Unlock()
		writerOnce.Do(initWriter)
		select {
		case writerCh <- b:
		default:
		}
	}
}

// StartSpan starts a child span under the trace carried by ctx, if any. If
// ctx carries no trace (operation wasn't sampled), it returns a no-op end
// function.
func StartSpan(ctx context.Context, name string) func() {
	v := ctx.Value(ctxKeyType{})
	tr, ok := v.(*Trace)
	if !ok || tr == nil {
		return func() {}
	}
	startRel := time.Since(tr.startTime).Microseconds()
	id := genSpanID()

	tr.mu.Lock()
	parent := ""
	if len(tr.spanStack) > 0 {
		parent = tr.spanStack[len(tr.spanStack)-1]
	}
	tr.Spans = append(tr.Spans, Span{ID: id, ParentID: parent, Op: name, StartUs: startRel})
	tr.spanStack = append(tr.spanStack, id)
	idx := len(tr.Spans) - 1
	tr.mu.Unlock()

	return func() {
		endRel := time.Since(tr.startTime).Microseconds()
		tr.mu.Lock()
		if idx < len(tr.Spans) {
			tr.Spans[idx].Duration = endRel - tr.Spans[idx].StartUs
		}
		if len(tr.spanStack) > 0 {
			tr.spanStack = tr.spanStack[:len(tr.spanStack)-1]
		}
		tr.mu.Unlock()
	}
}

// SetSpanData attaches a key/value to the currently active span, if any.
func SetSpanData(ctx context.Context, key string, value interface{}) {
	v := ctx.Value(ctxKeyType{})
	tr, ok := v.(*Trace)
	if !ok || tr == nil {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.spanStack) == 0 {
		return
	}
	top := tr.spanStack[len(tr.spanStack)-1]
	for i := len(tr.Spans) - 1; i >= 0; i-- {
		if tr.Spans[i].ID == top {
			if tr.Spans[i].Data == nil {
				tr.Spans[i].Data = make(map[string]interface{})
			}
			tr.Spans[i].Data[key] = value
			return
		}
	}
}

// SetSampleRate sets the approximate fraction (0..1) of operations that get
// a full span trace recorded.
func SetSampleRate(r float64) {
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	sampleRate = r
}

func shouldSample() bool {
	if sampleRate <= 0 {
		return false
	}
	if sampleRate >= 1 {
		return true
	}
	denom := int64(1 / sampleRate)
	if denom <= 1 {
		return true
	}
	n := int64(atomic.AddUint64(&opCtr, 1))
	return n%denom == 0
}

func renderTrace(t *Trace) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "OP %s op=%s duration_us=%d\n", t.ID, t.Op, t.Duration)

	children := make(map[string][]Span)
	for _, sp := range t.Spans {
		children[sp.ParentID] = append(children[sp.ParentID], sp)
	}
	var printSpan func(id string, depth int)
	printSpan = func(id string, depth int) {
		list := children[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartUs < list[j].StartUs })
		for _, sp := range list {
			indent := strings.Repeat("  ", depth)
			dataStr := ""
			if len(sp.Data) > 0 {
				var parts []string
				for k, v := range sp.Data {
					parts = append(parts, fmt.Sprintf("%s=%v", k, v))
				}
				dataStr = " data=" + strings.Join(parts, ",")
			}
			fmt.Fprintf(&b, "%s- %s id=%s start_us=%d duration_us=%d%s\n", indent, sp.Op, sp.ID, sp.StartUs, sp.Duration, dataStr)
			printSpan(sp.ID, depth+1)
		}
	}
	printSpan("", 1)
	return []byte(b.String())
}

func genOpID() string {
	n := atomic.AddUint64(&opCtr, 1)
	return "op-" + fmtUint64(n)
}

func genSpanID() string {
	n := atomic.AddUint64(&spanCtr, 1)
	return "sp-" + fmtUint64(n)
}

func fmtUint64(v uint64) string {
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 0, 20)
	for v > 0 {
		buf = append(buf, byte('0')+byte(v%10))
		v /= 10
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
