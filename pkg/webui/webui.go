// Package webui serves a browser keypad for driving the motors, plus a small
// JSON API.
package webui

import (
	"context"
	_ "embed"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

//go:embed index.html
var indexHTML []byte

// Controller is the part of the controller the web UI needs.
type Controller interface {
	drive.Sender
	Status() controller.Status
	OnStatus(fn func(controller.Status))
}

type Server struct {
	addr string
	ctrl Controller

	upgrader websocket.Upgrader

	clientsLock sync.Mutex
	clients     map[*client]bool

	log *log.Entry
}

type client struct {
	conn *websocket.Conn
	out  chan interface{}
}

type wsError struct {
	Error string `json:"error"`
}

func New(addr string, ctrl Controller) *Server {
	s := &Server{
		addr: addr,
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: map[*client]bool{},
		log:     log.WithField("component", "webui"),
	}
	ctrl.OnStatus(s.broadcast)
	return s
}

func (s *Server) Name() string {
	return "http"
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer) // make sure this is last

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	r.Get("/ws", s.serveWebsocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Post("/commands/{command}", s.postCommand)
	})
	return r
}

// Run serves until ctx is done. The sender argument is unused: commands go to
// the controller given to New.
func (s *Server) Run(ctx context.Context, _ drive.Sender) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	errs := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("Listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "web server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	return err
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.ctrl.Status())
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := parseMove(chi.URLParam(r, "command"))
	if err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := s.ctrl.Send(r.Context(), cmd); err != nil {
		if err == controller.ErrStopped {
			_ = render.Render(w, r, ErrUnavailable(err))
			return
		}
		_ = render.Render(w, r, ErrInternal(err))
		return
	}
	render.JSON(w, r, s.ctrl.Status())
}

// parseMove only accepts movement commands: quitting is left to the operator
// at the robot.
func parseMove(s string) (drive.Command, error) {
	cmd, err := drive.Parse(s)
	if err != nil {
		return drive.None, err
	}
	if !cmd.Moves() {
		return drive.None, errors.Errorf("%v is not available remotely", cmd)
	}
	return cmd, nil
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := &client{conn: conn, out: make(chan interface{}, 8)}
	c.out <- s.ctrl.Status()

	s.clientsLock.Lock()
	s.clients[c] = true
	s.clientsLock.Unlock()

	go s.writeLoop(c)
	defer s.removeClient(c)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := parseMove(string(msg))
		if err == nil {
			err = s.ctrl.Send(r.Context(), cmd)
		}
		if err != nil {
			s.queue(c, wsError{Error: err.Error()})
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.out {
		if err := c.conn.WriteJSON(msg); err != nil {
			s.log.WithError(err).Debug("Websocket write failed")
			return
		}
	}
}

func (s *Server) broadcast(status controller.Status) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	for c := range s.clients {
		s.queueLocked(c, status)
	}
}

func (s *Server) queue(c *client, msg interface{}) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	s.queueLocked(c, msg)
}

// queueLocked drops the message if the client is too far behind; the next
// status supersedes it anyway.
func (s *Server) queueLocked(c *client, msg interface{}) {
	if !s.clients[c] {
		return
	}
	select {
	case c.out <- msg:
	default:
		s.log.Debug("Websocket client lagging, dropping update")
	}
}

func (s *Server) removeClient(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.out)
	}
}

func (s *Server) closeClients() {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}
