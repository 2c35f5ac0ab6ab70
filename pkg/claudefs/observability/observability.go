// Package observability implements in-process distributed tracing: spans
// with nested events and attributes, sampled collection, and running
// statistics, independent of any particular exporter.
package observability

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SpanID uniquely identifies a span within a collector.
type SpanID uint64

// Status is the terminal outcome recorded when a span ends.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusTimeout
	StatusCancelled
)

// Severity orders the importance of a SpanEvent; higher values are more
// severe and Severity values compare with the usual operators.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// AttrKind discriminates which field of Attribute holds the value.
type AttrKind int

const (
	AttrString AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
)

// Attribute is a key-value pair attached to a span or event. Exactly one
// of StringValue/IntValue/FloatValue/BoolValue is meaningful, selected by
// Kind.
type Attribute struct {
	Key         string
	Kind        AttrKind
	StringValue string
	IntValue    int64
	FloatValue  float64
	BoolValue   bool
}

// StringAttr creates a string-valued attribute.
func StringAttr(key, value string) Attribute {
	return Attribute{Key: key, Kind: AttrString, StringValue: value}
}

// IntAttr creates an int-valued attribute.
func IntAttr(key string, value int64) Attribute {
	return Attribute{Key: key, Kind: AttrInt, IntValue: value}
}

// FloatAttr creates a float-valued attribute.
func FloatAttr(key string, value float64) Attribute {
	return Attribute{Key: key, Kind: AttrFloat, FloatValue: value}
}

// BoolAttr creates a bool-valued attribute.
func BoolAttr(key string, value bool) Attribute {
	return Attribute{Key: key, Kind: AttrBool, BoolValue: value}
}

// Event is a point-in-time occurrence recorded within a span.
type Event struct {
	Name        string
	Severity    Severity
	TimestampUs uint64
	Attributes  []Attribute
}

// Span is a single traced operation, with timing, status, attributes and
// the events recorded during its lifetime.
type Span struct {
	ID         SpanID
	ParentID   *SpanID
	Name       string
	Status     Status
	StartUs    uint64
	EndUs      uint64
	Attributes []Attribute
	Events     []Event
}

func newSpan(id SpanID, parentID *SpanID, name string, startUs uint64) Span {
	return Span{ID: id, ParentID: parentID, Name: name, StartUs: startUs}
}

// DurationUs returns the span's wall-clock duration in microseconds.
func (s *Span) DurationUs() uint64 {
	if s.EndUs < s.StartUs {
		return 0
	}
	return s.EndUs - s.StartUs
}

// Config tunes span retention and sampling.
type Config struct {
	MaxSpans         int
	MaxEventsPerSpan int
	MaxAttributes    int
	SampleRate       float64
	Enabled          bool
}

// DefaultConfig returns the observability defaults.
func DefaultConfig() Config {
	return Config{
		MaxSpans:         4096,
		MaxEventsPerSpan: 64,
		MaxAttributes:    32,
		SampleRate:       1.0,
		Enabled:          true,
	}
}

// Builder accumulates a span's initial name, parent and attributes before
// it is registered with a Collector.
type Builder struct {
	name       string
	parentID   *SpanID
	attributes []Attribute
	startUs    uint64
}

// NewBuilder creates a span builder, defaulting StartUs to the current
// wall-clock time.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, startUs: nowUs()}
}

// Parent sets the span's parent.
func (b *Builder) Parent(parentID SpanID) *Builder {
	b.parentID = &parentID
	return b
}

// Attribute appends an attribute to the span.
func (b *Builder) Attribute(attr Attribute) *Builder {
	b.attributes = append(b.attributes, attr)
	return b
}

// StringAttr appends a string attribute.
func (b *Builder) StringAttr(key, value string) *Builder {
	return b.Attribute(StringAttr(key, value))
}

// IntAttr appends an int attribute.
func (b *Builder) IntAttr(key string, value int64) *Builder {
	return b.Attribute(IntAttr(key, value))
}

// BoolAttr appends a bool attribute.
func (b *Builder) BoolAttr(key string, value bool) *Builder {
	return b.Attribute(BoolAttr(key, value))
}

// FloatAttr appends a float attribute.
func (b *Builder) FloatAttr(key string, value float64) *Builder {
	return b.Attribute(FloatAttr(key, value))
}

// StartUs overrides the span's start time.
func (b *Builder) StartUs(timeUs uint64) *Builder {
	b.startUs = timeUs
	return b
}

func (b *Builder) build(id SpanID) Span {
	span := newSpan(id, b.parentID, b.name, b.startUs)
	span.Attributes = b.attributes
	return span
}

func nowUs() uint64 {
	return uint64(time.Now().UnixMicro())
}

// StatsSnapshot is a point-in-time read of a Collector's counters.
type StatsSnapshot struct {
	SpansCreated   uint64
	SpansCompleted uint64
	SpansDropped   uint64
	EventsRecorded uint64
	ErrorSpans     uint64
}

type stats struct {
	spansCreated   atomic.Uint64
	spansCompleted atomic.Uint64
	spansDropped   atomic.Uint64
	eventsRecorded atomic.Uint64
	errorSpans     atomic.Uint64
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		SpansCreated:   s.spansCreated.Load(),
		SpansCompleted: s.spansCompleted.Load(),
		SpansDropped:   s.spansDropped.Load(),
		EventsRecorded: s.eventsRecorded.Load(),
		ErrorSpans:     s.errorSpans.Load(),
	}
}

// Collector tracks in-progress and completed spans, applying the
// configured sampling and retention limits.
type Collector struct {
	config     Config
	mu         sync.Mutex
	inProgress map[SpanID]Span
	completed  []Span
	nextSpanID atomic.Uint64
	stats      stats
}

// NewCollector creates a collector with config.
func NewCollector(config Config) *Collector {
	c := &Collector{
		config:     config,
		inProgress: make(map[SpanID]Span),
	}
	c.nextSpanID.Store(1)
	return c
}

func sampleHash(id SpanID) float64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h := xxhash.Sum64(buf[:])
	return float64(h) / float64(^uint64(0))
}

// StartSpan registers a new span from builder and returns its ID. If
// sampling drops the span, the ID is still allocated but the span is not
// retained.
func (c *Collector) StartSpan(builder *Builder) SpanID {
	id := SpanID(c.nextSpanID.Add(1) - 1)

	if !c.config.Enabled {
		return id
	}

	span := builder.build(id)

	if c.config.SampleRate < 1.0 {
		if sampleHash(id) >= c.config.SampleRate {
			return id
		}
	}

	c.stats.spansCreated.Add(1)

	c.mu.Lock()
	c.inProgress[id] = span
	c.mu.Unlock()

	return id
}

// AddEvent records a severity-only event on span_id. Returns false if the
// span is unknown, disabled, or the span's event limit has been reached.
func (c *Collector) AddEvent(spanID SpanID, name string, severity Severity) bool {
	return c.AddEventWithAttrs(spanID, name, severity, nil)
}

// AddEventWithAttrs records an event with attributes on span_id.
func (c *Collector) AddEventWithAttrs(spanID SpanID, name string, severity Severity, attrs []Attribute) bool {
	if !c.config.Enabled {
		return false
	}

	c.stats.eventsRecorded.Add(1)

	if len(attrs) > c.config.MaxAttributes {
		return false
	}

	event := Event{Name: name, Severity: severity, TimestampUs: nowUs(), Attributes: attrs}

	c.mu.Lock()
	defer c.mu.Unlock()

	span, ok := c.inProgress[spanID]
	if !ok {
		return false
	}
	if len(span.Events) >= c.config.MaxEventsPerSpan {
		return false
	}
	span.Events = append(span.Events, event)
	c.inProgress[spanID] = span
	return true
}

// EndSpan finalizes spanID with status, moving it from in-progress to
// completed. Returns false if the span is unknown (or observability is
// disabled, in which case there is nothing to record and the call is a
// no-op success).
func (c *Collector) EndSpan(spanID SpanID, status Status) bool {
	if !c.config.Enabled {
		return true
	}

	c.mu.Lock()
	span, ok := c.inProgress[spanID]
	if ok {
		delete(c.inProgress, spanID)
		span.EndUs = nowUs()
		span.Status = status
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	if status == StatusError {
		c.stats.errorSpans.Add(1)
	}
	c.stats.spansCompleted.Add(1)

	c.mu.Lock()
	if len(c.completed) >= c.config.MaxSpans {
		c.completed = c.completed[1:]
		c.stats.spansDropped.Add(1)
	}
	c.completed = append(c.completed, span)
	c.mu.Unlock()

	return true
}

// GetSpan returns a copy of the in-progress span with spanID, if any.
func (c *Collector) GetSpan(spanID SpanID) (Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	span, ok := c.inProgress[spanID]
	return span, ok
}

// DrainCompleted removes and returns every completed span.
func (c *Collector) DrainCompleted() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.completed
	c.completed = nil
	return out
}

// CompletedCount returns the number of completed spans awaiting drain.
func (c *Collector) CompletedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completed)
}

// Stats returns a snapshot of the collector's counters.
func (c *Collector) Stats() StatsSnapshot {
	return c.stats.snapshot()
}
