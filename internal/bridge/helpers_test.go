package bridge

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jscyril/soundbridge/internal/audio"
	"github.com/jscyril/soundbridge/internal/registry"
	"github.com/jscyril/soundbridge/pkg/events"
)

// testSink mixes nothing; tests drive it with pump
type testSink struct {
	mu        sync.Mutex
	streamers []beep.Streamer
}

func (s *testSink) Init(beep.SampleRate, int) error { return nil }

func (s *testSink) Play(st beep.Streamer) {
	s.Lock()
	defer s.Unlock()
	s.streamers = append(s.streamers, st)
}

func (s *testSink) Lock()   { s.mu.Lock() }
func (s *testSink) Unlock() { s.mu.Unlock() }

func (s *testSink) pump(n int) {
	s.Lock()
	defer s.Unlock()

	buf := make([][2]float64, n)
	for _, st := range s.streamers {
		st.Stream(buf)
	}
}

type harness struct {
	module   *Module
	registry *registry.Registry
	bus      *events.EventBus
	sink     *testSink
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zap.NewNop().Sugar()
	sink := &testSink{}
	opts := audio.DefaultOptions()
	opts.Sink = sink

	factory, err := audio.NewFactory(audio.BackendBeep, opts, logger)
	require.NoError(t, err)

	bus := events.NewEventBus()
	reg := registry.New(factory, logger, registry.WithEventBus(bus))
	t.Cleanup(func() {
		reg.TeardownAll()
		bus.Close()
	})

	return &harness{
		module:   NewModule("", reg, logger),
		registry: reg,
		bus:      bus,
		sink:     sink,
		dir:      t.TempDir(),
	}
}

// clip writes a silent 44.1kHz stereo WAV of n samples
func (h *harness) clip(t *testing.T, name string, n int) string {
	t.Helper()

	path := filepath.Join(h.dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(file, beep.Silence(n), format))
	return path
}

// recorder collects callback invocations
type recorder chan []interface{}

func newRecorder() recorder {
	return make(recorder, 4)
}

func (r recorder) callback(args ...interface{}) {
	r <- args
}
