// Copyright 2025 The AgentLens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultSpanLogSize = 1000

// SpanLog is a SpanExporter that retains recent spans in memory so the
// debug endpoint can show what the backend did for a session without a
// trace collector running.
//
// Only the inspector's own span shapes (card fetches and dispatch
// cycles) are captured; per-request HTTP spans would drown them out.
//
// Thread-safe for concurrent reads and writes.
type SpanLog struct {
	mu      sync.RWMutex
	spans   map[string]*LoggedSpan // Keyed by span ID
	maxSize int
}

// LoggedSpan contains captured span information for debugging.
type LoggedSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Name         string            `json:"name"`
	StartTime    int64             `json:"start_time_unix_nano"`
	EndTime      int64             `json:"end_time_unix_nano"`
	DurationMs   float64           `json:"duration_ms"`
	Attributes   map[string]string `json:"attributes"`
	Events       []SpanEvent       `json:"events,omitempty"`
	Status       string            `json:"status"`
	StatusMsg    string            `json:"status_message,omitempty"`
}

// SpanEvent represents an event recorded on a span, including the
// exception events RecordError leaves behind.
type SpanEvent struct {
	Name       string            `json:"name"`
	TimeUnix   int64             `json:"time_unix_nano"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewSpanLog creates a SpanLog retaining at most maxSize spans. A
// non-positive maxSize selects the default of 1000.
func NewSpanLog(maxSize int) *SpanLog {
	if maxSize <= 0 {
		maxSize = defaultSpanLogSize
	}
	return &SpanLog{
		spans:   make(map[string]*LoggedSpan),
		maxSize: maxSize,
	}
}

// ExportSpans implements sdktrace.SpanExporter.
func (l *SpanLog) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, span := range spans {
		if !l.shouldCapture(span.Name()) {
			continue
		}

		logged := l.convertSpan(span)
		l.spans[logged.SpanID] = logged

		l.evictExcess()
	}

	return nil
}

func (l *SpanLog) shouldCapture(name string) bool {
	switch name {
	case SpanCardFetch, SpanSessionDispatch:
		return true
	default:
		return false
	}
}

func (l *SpanLog) convertSpan(span sdktrace.ReadOnlySpan) *LoggedSpan {
	startTime := span.StartTime().UnixNano()
	endTime := span.EndTime().UnixNano()

	ls := &LoggedSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		StartTime:  startTime,
		EndTime:    endTime,
		DurationMs: float64(endTime-startTime) / 1e6,
		Attributes: make(map[string]string),
		Status:     span.Status().Code.String(),
		StatusMsg:  span.Status().Description,
	}

	if span.Parent().HasSpanID() {
		ls.ParentSpanID = span.Parent().SpanID().String()
	}

	for _, attr := range span.Attributes() {
		ls.Attributes[string(attr.Key)] = attr.Value.AsString()
	}

	for _, event := range span.Events() {
		se := SpanEvent{
			Name:       event.Name,
			TimeUnix:   event.Time.UnixNano(),
			Attributes: make(map[string]string),
		}
		for _, attr := range event.Attributes {
			se.Attributes[string(attr.Key)] = attr.Value.AsString()
		}
		ls.Events = append(ls.Events, se)
	}

	return ls
}

// evictExcess drops spans over the size limit. Eviction order is not
// strictly oldest-first; the log is a debugging aid, not an archive.
// Caller must hold the write lock.
func (l *SpanLog) evictExcess() {
	excess := len(l.spans) - l.maxSize
	if excess <= 0 {
		return
	}

	removed := 0
	for id := range l.spans {
		if removed >= excess {
			break
		}
		delete(l.spans, id)
		removed++
	}
}

// Shutdown implements sdktrace.SpanExporter.
func (l *SpanLog) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spans = make(map[string]*LoggedSpan)
	return nil
}

// Get returns a span by its span ID, or nil.
func (l *SpanLog) Get(spanID string) *LoggedSpan {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spans[spanID]
}

// All returns every retained span.
func (l *SpanLog) All() []*LoggedSpan {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*LoggedSpan, 0, len(l.spans))
	for _, span := range l.spans {
		result = append(result, span)
	}
	return result
}

// ByName returns all retained spans with the given name.
func (l *SpanLog) ByName(name string) []*LoggedSpan {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*LoggedSpan
	for _, span := range l.spans {
		if span.Name == name {
			result = append(result, span)
		}
	}
	return result
}

// BySession returns all retained spans recorded for the given
// connection's session.
func (l *SpanLog) BySession(sessionID string) []*LoggedSpan {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*LoggedSpan
	for _, span := range l.spans {
		if span.Attributes[AttrSessionID] == sessionID {
			result = append(result, span)
		}
	}
	return result
}

// Clear removes all retained spans.
func (l *SpanLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spans = make(map[string]*LoggedSpan)
}

// Count returns the number of retained spans.
func (l *SpanLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.spans)
}

// Ensure SpanLog implements SpanExporter.
var _ sdktrace.SpanExporter = (*SpanLog)(nil)
