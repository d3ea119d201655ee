package audio

import (
	"os"
	"sync"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"
)

const testSampleRate = beep.SampleRate(44100)

// writeTestWAV writes n samples of silence as 16-bit stereo WAV
func writeTestWAV(t *testing.T, path string, n int) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	format := beep.Format{SampleRate: testSampleRate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(file, beep.Silence(n), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
}

// fakeSink records the streamers it is given instead of opening a device
type fakeSink struct {
	mu        sync.Mutex
	inits     int
	streamers []beep.Streamer
}

func (s *fakeSink) Init(sampleRate beep.SampleRate, bufferSize int) error {
	s.Lock()
	defer s.Unlock()
	s.inits++
	return nil
}

func (s *fakeSink) Play(st beep.Streamer) {
	s.Lock()
	defer s.Unlock()
	s.streamers = append(s.streamers, st)
}

func (s *fakeSink) Lock()   { s.mu.Lock() }
func (s *fakeSink) Unlock() { s.mu.Unlock() }

// pump streams n samples from every attached streamer the way the speaker would
func (s *fakeSink) pump(n int) {
	s.Lock()
	defer s.Unlock()

	buf := make([][2]float64, n)
	for _, st := range s.streamers {
		st.Stream(buf)
	}
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
