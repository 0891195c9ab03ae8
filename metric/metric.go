// Package metric publishes per-component counters with expvar. Every
// component type gets one expvar map published as piano.<type>; counters
// are keys of that map.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelined/piano/signal"
)

const prefix = "piano"

// Counters measured for every metered pipe component.
const (
	// MessageCounter is the number of processed buffers.
	MessageCounter = "Messages"
	// SampleCounter is the number of processed samples per channel.
	SampleCounter = "Samples"
	// LatencyCounter is the time between the latest two buffers.
	LatencyCounter = "Latency"
	// DurationCounter is the total duration of processed signal.
	DurationCounter = "Duration"
	// ComponentCounter is the number of metered components of the type.
	ComponentCounter = "Components"
)

var registry = struct {
	sync.Mutex
	types map[string]*expvar.Map
}{
	types: make(map[string]*expvar.Map),
}

// component returns the published map of the component type.
func component(t string) *expvar.Map {
	registry.Lock()
	defer registry.Unlock()
	if m, ok := registry.types[t]; ok {
		return m
	}
	m := expvar.NewMap(prefix + "." + t)
	registry.types[t] = m
	return m
}

// Get returns counter values of the component type.
func Get(c interface{}) map[string]string {
	return values(component(typeName(c)))
}

// GetAll returns counter values of all component types.
func GetAll() map[string]map[string]string {
	registry.Lock()
	types := make(map[string]*expvar.Map, len(registry.types))
	for t, m := range registry.types {
		types[t] = m
	}
	registry.Unlock()

	all := make(map[string]map[string]string, len(types))
	for t, m := range types {
		all[t] = values(m)
	}
	return all
}

func values(m *expvar.Map) map[string]string {
	v := make(map[string]string)
	m.Do(func(kv expvar.KeyValue) {
		v[kv.Key] = kv.Value.String()
	})
	return v
}

// Counter returns the named counter of the component type. All components
// of the same type share it.
func Counter(c interface{}, name string) *expvar.Int {
	return intVar(component(typeName(c)), name)
}

// intVar returns the int counter of the map, creating it if needed.
func intVar(m *expvar.Map, name string) *expvar.Int {
	registry.Lock()
	defer registry.Unlock()
	if v, ok := m.Get(name).(*expvar.Int); ok {
		return v
	}
	v := new(expvar.Int)
	m.Set(name, v)
	return v
}

func durationVar(m *expvar.Map, name string) *duration {
	registry.Lock()
	defer registry.Unlock()
	if v, ok := m.Get(name).(*duration); ok {
		return v
	}
	v := new(duration)
	m.Set(name, v)
	return v
}

// ResetFunc starts measuring of a single run. Measure closure is created
// when the component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc records a processed buffer of bufferSize samples per channel.
type MeasureFunc func(bufferSize int64)

// Meter registers a component and returns its measure factory.
func Meter(c interface{}, sampleRate int) ResetFunc {
	m := component(typeName(c))
	intVar(m, ComponentCounter).Add(1)
	var (
		messages = intVar(m, MessageCounter)
		samples  = intVar(m, SampleCounter)
		latency  = durationVar(m, LatencyCounter)
		total    = durationVar(m, DurationCounter)
	)
	return func() MeasureFunc {
		last := time.Now()
		var (
			size     int64
			duration time.Duration
		)
		return func(bufferSize int64) {
			now := time.Now()
			latency.set(now.Sub(last))
			last = now
			messages.Add(1)
			samples.Add(bufferSize)
			if size != bufferSize {
				size = bufferSize
				duration = signal.DurationOf(sampleRate, bufferSize)
			}
			total.add(duration)
		}
	}
}

// typeName returns the type name of dereferenced value.
func typeName(c interface{}) string {
	t := reflect.TypeOf(c)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// duration is an expvar.Var of time.Duration.
type duration struct {
	ns int64
}

func (d *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&d.ns)))
}

func (d *duration) add(delta time.Duration) {
	atomic.AddInt64(&d.ns, int64(delta))
}

func (d *duration) set(v time.Duration) {
	atomic.StoreInt64(&d.ns, int64(v))
}
