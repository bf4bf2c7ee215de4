// Package events records planning events emitted by the engines:
// vessel berthing and deferral, inventory breaches, solver outcomes.
// Engines accept a nil Recorder when no observation is wanted.
package events

import (
	"sync"
	"time"
)

// Event is one recorded planning occurrence.
type Event interface {
	Type() string
	StreamID() string
	Data() interface{}
	Timestamp() time.Time
}

// Recorder accepts events. Implementations must be safe for use from
// a single engine run; engines never record concurrently.
type Recorder interface {
	Record(event Event)
}

// Event types emitted by the planning engines.
const (
	VesselBerthedEvent     = "vessel.berthed"
	VesselDeferredEvent    = "vessel.deferred"
	VesselHeldEvent        = "vessel.held"
	InventoryExceededEvent = "inventory.exceeded"
	SolveCompletedEvent    = "solve.completed"
	SolveFailedEvent       = "solve.failed"
	RatesAdjustedEvent     = "rates.adjusted"
)

// VesselBerthed reports a vessel committed to tanks on a day.
type VesselBerthed struct {
	Day     int
	LDRText string
}

// VesselDeferred reports a vessel pushed to the next day for lack of
// ullage.
type VesselDeferred struct {
	Day      int
	NextDay  int
	DaysHeld int
	LDRText  string
}

// VesselHeld reports a vessel still unberthed when the horizon ended.
type VesselHeld struct {
	OriginalDay int
	DaysHeld    int
	Reason      string
	LDRText     string
}

// InventoryExceeded reports total inventory above the configured
// maximum at the end of a day.
type InventoryExceeded struct {
	Day     int
	TotalKB float64
	MaxKB   float64
}

// SolveCompleted reports a successful MILP solve.
type SolveCompleted struct {
	Model     string
	Status    string
	Objective float64
}

// SolveFailed reports a MILP solve that did not reach optimality.
type SolveFailed struct {
	Model   string
	Status  string
	Message string
}

// RatesAdjusted reports a rate-borrowing adjustment between two days.
type RatesAdjusted struct {
	FromDay  int
	ToDay    int
	Grade    string
	VolumeKB float64
}

// BaseEvent is the standard Event implementation.
type BaseEvent struct {
	EventType string
	Stream    string
	EventData interface{}
	EventTime time.Time
}

func (e BaseEvent) Type() string         { return e.EventType }
func (e BaseEvent) StreamID() string     { return e.Stream }
func (e BaseEvent) Data() interface{}    { return e.EventData }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// New builds an event stamped with the current time.
func New(eventType, streamID string, data interface{}) Event {
	return BaseEvent{
		EventType: eventType,
		Stream:    streamID,
		EventData: data,
		EventTime: time.Now(),
	}
}

// Record sends an event to the recorder, tolerating a nil recorder.
func Record(r Recorder, eventType, streamID string, data interface{}) {
	if r == nil {
		return
	}
	r.Record(New(eventType, streamID, data))
}

// MemoryStore keeps recorded events in order.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an empty in-memory recorder.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements Recorder.
func (s *MemoryStore) Record(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns all recorded events in order.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns recorded events of one type, in order.
func (s *MemoryStore) ByType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}
