// Package httpctl exposes the controller over HTTP. Control documents
// are posted as JSON to the command endpoint; status is also available
// as a plain GET for monitoring tools that cannot build a cmd message.
package httpctl

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dw96/odin-data/internal/controller"
	"github.com/dw96/odin-data/internal/ipc"
	"github.com/dw96/odin-data/pkg/log"
)

// maxBodyBytes bounds a command document; configure payloads are small.
const maxBodyBytes = 1 << 20

// Server serves the control API for one Controller.
type Server struct {
	ctl    *controller.Controller
	router *chi.Mux
	logger log.Logger

	httpServer *http.Server
}

// New creates a control server for ctl listening on addr.
func New(addr string, ctl *controller.Controller, logger log.Logger) *Server {
	s := &Server{
		ctl:    ctl,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Post("/api/0.1/command", s.handleCommand)
	s.router.Get("/api/0.1/status", s.handleStatus)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks serving the control API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("control server listening", log.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}

	req, err := ipc.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type != ipc.MsgTypeCmd {
		http.Error(w, "msg_type must be cmd", http.StatusBadRequest)
		return
	}

	reply := s.ctl.HandleRequest(req)
	s.writeReply(w, reply)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	req := ipc.NewRequest(ipc.OpStatus)
	reply := s.ctl.HandleRequest(req)
	s.writeReply(w, reply)
}

func (s *Server) writeReply(w http.ResponseWriter, reply *ipc.Message) {
	data, err := reply.Encode()
	if err != nil {
		s.logger.Error("encode control reply failed", log.Err(err))
		http.Error(w, "encode reply", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if reply.Type == ipc.MsgTypeNack {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	w.Write(data)
}
