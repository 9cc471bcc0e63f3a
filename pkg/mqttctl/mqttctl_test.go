package mqttctl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

type fakeSource struct {
	listeners []func(controller.Status)
}

func (f *fakeSource) OnStatus(fn func(controller.Status)) {
	f.listeners = append(f.listeners, fn)
}

type recorder struct {
	cmds []drive.Command
}

func (r *recorder) Send(ctx context.Context, cmd drive.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return qos }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "motorctl/command" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *doneToken) Error() error { return t.err }

// subscriber records subscriptions; other Client methods are not used.
type subscriber struct {
	mqtt.Client
	topics   []string
	handlers []mqtt.MessageHandler
	err      error
}

func (s *subscriber) Subscribe(topic string, _ byte, h mqtt.MessageHandler) mqtt.Token {
	s.topics = append(s.topics, topic)
	s.handlers = append(s.handlers, h)
	return &doneToken{err: s.err}
}

func TestCommands(t *testing.T) {
	Convey("Given an MQTT client", t, func() {
		src := &fakeSource{}
		c := New("tcp://localhost:1883", "test", "robot", src)
		r := &recorder{}

		Convey("topics use the prefix", func() {
			So(c.CommandTopic(), ShouldEqual, "robot/command")
			So(c.StatusTopic(), ShouldEqual, "robot/status")
		})

		Convey("command payloads are sent to the motors", func() {
			h := c.messageHandler(context.Background(), r)
			for _, p := range []string{"forward", "S", " right\n", "a"} {
				h(nil, &fakeMessage{payload: []byte(p)})
			}
			So(r.cmds, ShouldResemble, []drive.Command{drive.Forward, drive.Backward, drive.Right, drive.Left})
		})

		Convey("unknown commands and quit are rejected", func() {
			So(c.handle(context.Background(), r, []byte("dance")), ShouldNotBeNil)
			So(c.handle(context.Background(), r, []byte("quit")), ShouldNotBeNil)
			So(r.cmds, ShouldBeEmpty)
		})
	})
}

func TestSubscribeOnEveryConnect(t *testing.T) {
	Convey("Given an MQTT client's connect handler", t, func() {
		c := New("tcp://localhost:1883", "test", "robot", &fakeSource{})
		r := &recorder{}
		sub := &subscriber{}
		onConnect := c.onConnect(context.Background(), r)

		Convey("each connect subscribes to the command topic again", func() {
			onConnect(sub)
			onConnect(sub)
			So(sub.topics, ShouldResemble, []string{"robot/command", "robot/command"})

			sub.handlers[1](nil, &fakeMessage{payload: []byte("forward")})
			So(r.cmds, ShouldResemble, []drive.Command{drive.Forward})
		})

		Convey("a failed subscription is reported", func() {
			sub.err = errors.New("not authorised")
			err := c.subscribe(sub, c.messageHandler(context.Background(), r))
			So(err, ShouldNotBeNil)
			So(errors.Cause(err).Error(), ShouldEqual, "not authorised")
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given an MQTT client listening for status", t, func() {
		src := &fakeSource{}
		c := New("tcp://localhost:1883", "test", "motorctl", src)
		So(src.listeners, ShouldHaveLength, 1)

		Convey("only the newest unpublished status is kept", func() {
			src.listeners[0](controller.Status{Left: 0.05, Commands: 1})
			src.listeners[0](controller.Status{Left: 0.1, Commands: 2})
			s := <-c.statuses
			So(s.Commands, ShouldEqual, 2)
			So(c.statuses, ShouldBeEmpty)
		})

		Convey("status payloads are JSON", func() {
			p, err := statusPayload(controller.Status{
				Left:   0.2,
				Right:  -0.1,
				MotorA: motor.State{Forward: true, Duty: 0.2},
				MotorB: motor.State{Backward: true, Duty: 0.1},
			})
			So(err, ShouldBeNil)

			var decoded map[string]interface{}
			So(json.Unmarshal(p, &decoded), ShouldBeNil)
			So(decoded["left"], ShouldEqual, 0.2)
			So(decoded["right"], ShouldEqual, -0.1)
			So(decoded["motor_a"].(map[string]interface{})["forward"], ShouldEqual, true)
			So(decoded["motor_b"].(map[string]interface{})["duty"], ShouldEqual, 0.1)
		})
	})
}
