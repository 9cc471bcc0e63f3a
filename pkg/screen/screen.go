package screen

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

// S is the side of the square display in pixels.
const S = 128

const refreshInterval = 500 * time.Millisecond

type statusSource interface {
	OnStatus(fn func(controller.Status))
}

// Screen shows the two speed totals as gauges on a small RGB565 framebuffer.
type Screen struct {
	device string

	lock   sync.Mutex
	status controller.Status

	log *log.Entry
}

func New(device string, source statusSource) *Screen {
	s := &Screen{
		device: device,
		log:    log.WithField("component", "screen"),
	}
	source.OnStatus(s.onStatus)
	return s
}

func (s *Screen) onStatus(st controller.Status) {
	s.lock.Lock()
	s.status = st
	s.lock.Unlock()
}

// Run redraws until ctx is done, then blanks the screen. A missing display is
// logged and ignored.
func (s *Screen) Run(ctx context.Context) {
	f, err := os.OpenFile(s.device, os.O_RDWR, 0666)
	if err != nil {
		s.log.WithError(err).Info("Failed to open screen, ignoring")
		return
	}
	defer f.Close()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var buf [S * S * 2]byte
			_ = writeFrame(f, buf[:])
			return
		case <-ticker.C:
		}

		s.lock.Lock()
		st := s.status
		s.lock.Unlock()

		if err := writeFrame(f, Encode(Render(st))); err != nil {
			s.log.WithError(err).Warn("Screen failure")
			return
		}
	}
}

func writeFrame(f io.WriteSeeker, buf []byte) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for i := 0; i < S; i++ {
		if _, err := f.Write(buf[i*S*2 : (i+1)*S*2]); err != nil {
			return err
		}
		time.Sleep(10 * time.Microsecond)
	}
	return nil
}

// Render draws a gauge per motor: a bar growing up from the middle line for
// forward, down for backward, full height at full duty.
func Render(st controller.Status) image.Image {
	dc := gg.NewContext(S, S)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawString("L", 24, 12)
	dc.DrawString("R", 96, 12)

	drawGauge(dc, 14, st.Left)
	drawGauge(dc, 86, st.Right)

	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawString(fmt.Sprintf("%+.2f", st.Left), 6, 124)
	dc.DrawString(fmt.Sprintf("%+.2f", st.Right), 78, 124)
	return dc.Image()
}

const (
	gaugeTop    = 18
	gaugeHeight = 92
	gaugeWidth  = 28
)

func drawGauge(dc *gg.Context, x float64, speed float64) {
	mid := float64(gaugeTop + gaugeHeight/2)

	dc.SetRGBA(0.4, 0.4, 0.4, 1)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x, gaugeTop, gaugeWidth, gaugeHeight)
	dc.Stroke()
	dc.DrawLine(x, mid, x+gaugeWidth, mid)
	dc.Stroke()

	h := motor.Clamp(speed) * gaugeHeight / 2
	if h == 0 {
		return
	}
	if speed > 0 {
		dc.SetRGBA(1, 0.9, 0, 1)
		dc.DrawRectangle(x+2, mid-h, gaugeWidth-4, h)
	} else {
		dc.SetRGBA(1, 0.2, 0, 1)
		dc.DrawRectangle(x+2, mid, gaugeWidth-4, h)
	}
	dc.Fill()
}

// Encode converts to the display's RGB565 layout, which is rotated a quarter
// turn from the image.
func Encode(img image.Image) []byte {
	buf := make([]byte, S*S*2)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			c := img.At(x, y)
			r, g, b, _ := c.RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+(x)*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+(x)*S*2] = bb | (gb << 5)
		}
	}
	return buf
}
