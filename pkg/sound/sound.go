package sound

import (
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// Longest we'll hold up shutdown for a cue to finish.
	maxWait = 3 * time.Second
	// Longest Play waits for the speaker to open.
	initWait = 5 * time.Second
)

type request struct {
	path string
	done chan struct{}
}

// Player plays WAV cues one at a time on a background goroutine. A new cue cuts
// off the previous one.
type Player struct {
	requests chan request
	// Closed once the speaker has been opened, or has failed to open.
	ready     chan struct{}
	readyOnce sync.Once
	log       *log.Entry
}

func NewPlayer() *Player {
	p := &Player{
		requests: make(chan request),
		ready:    make(chan struct{}),
		log:      log.WithField("component", "sound"),
	}
	go p.loop()
	return p
}

func (p *Player) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *Player) loop() {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Warn("Sound player died")
		}
		p.markReady()
		for r := range p.requests {
			p.log.WithField("path", r.path).Info("Unable to play")
			close(r.done)
		}
	}()
	sampleRate := beep.SampleRate(44100)
	err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
	p.markReady()
	if err != nil {
		p.log.WithError(err).Warn("Failed to open speaker")
		return
	}
	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for r := range p.requests {
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		var format beep.Format
		s, format, err = decode(r.path)
		if err != nil {
			p.log.WithError(err).Warn("Failed to load sound")
			close(r.done)
			continue
		}
		length := format.SampleRate.D(s.Len())
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
		go func(done chan struct{}) {
			time.Sleep(length)
			close(done)
		}(r.done)
	}
}

// decode opens a WAV file. The file is closed again if it can't be decoded.
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "opening sound")
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, errors.Wrapf(err, "decoding %s", path)
	}
	return s, format, nil
}

// Play starts a cue and returns a channel closed roughly when it has finished.
// An empty path plays nothing.
func (p *Player) Play(path string) <-chan struct{} {
	done := make(chan struct{})
	if path == "" {
		close(done)
		return done
	}
	select {
	case <-p.ready:
	case <-time.After(initWait):
		p.log.WithField("path", path).Info("Speaker not ready")
		close(done)
		return done
	}
	select {
	case p.requests <- request{path: path, done: done}:
	case <-time.After(10 * time.Millisecond):
		p.log.WithField("path", path).Info("Timed out trying to play sound")
		close(done)
	}
	return done
}

// PlayAndWait plays a cue and waits for it, up to a few seconds.
func (p *Player) PlayAndWait(path string) {
	select {
	case <-p.Play(path):
	case <-time.After(maxWait):
	}
}

func (p *Player) Close() {
	close(p.requests)
}
