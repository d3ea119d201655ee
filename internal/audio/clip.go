package audio

import (
	"github.com/faiface/beep"
)

// clip streams one decoded source to the sink. Every field is guarded by the
// sink lock, which the sink also holds while calling Stream, so onEnd and
// onErr run under that lock and must hand work off instead of blocking.
type clip struct {
	source   beep.StreamSeekCloser
	stream   beep.Streamer
	resample func(beep.Streamer) beep.Streamer

	playing  bool
	detached bool
	left     float64
	right    float64

	onEnd func()
	onErr func(error)
}

func newClip(source beep.StreamSeekCloser, resample func(beep.Streamer) beep.Streamer, onEnd func(), onErr func(error)) *clip {
	if resample == nil {
		resample = func(s beep.Streamer) beep.Streamer { return s }
	}
	return &clip{
		source:   source,
		stream:   resample(source),
		resample: resample,
		left:     1,
		right:    1,
		onEnd:    onEnd,
		onErr:    onErr,
	}
}

// Stream fills samples with the gained source while playing and with silence
// otherwise. It only reports drained once the clip is detached.
func (c *clip) Stream(samples [][2]float64) (n int, ok bool) {
	if c.detached {
		return 0, false
	}
	if !c.playing {
		silence(samples)
		return len(samples), true
	}

	n, ok = c.stream.Stream(samples)
	for i := range samples[:n] {
		samples[i][0] *= c.left
		samples[i][1] *= c.right
	}

	if !ok || n < len(samples) {
		silence(samples[n:])
		c.playing = false
		if err := c.source.Err(); err != nil {
			c.onErr(err)
		} else {
			c.onEnd()
		}
	}
	return len(samples), true
}

func (c *clip) Err() error {
	return nil
}

// seek moves the source and rebuilds the resampler, which keeps its own read-ahead
func (c *clip) seek(p int) error {
	if p < 0 {
		p = 0
	}
	if length := c.source.Len(); p > length {
		p = length
	}
	if err := c.source.Seek(p); err != nil {
		return err
	}
	c.stream = c.resample(c.source)
	return nil
}

func silence(samples [][2]float64) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
}
