// Package rpc serves the node's JSON-RPC API over HTTP.
package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"golang.org/x/net/netutil"

	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/rpc/json"
)

// Server handles HTTP and websocket JSON-RPC requests.
type Server struct {
	*service.BaseService

	config *config.RPCConfig
	node   json.Node

	listener net.Listener
	server   *http.Server
}

// NewServer creates new instance of Server with given configuration.
func NewServer(node json.Node, config *config.RPCConfig, logger log.Logger) *Server {
	srv := &Server{
		config: config,
		node:   node,
	}
	srv.BaseService = service.NewBaseService(logger, "RPC", srv)
	return srv
}

// Addr returns the address the server listens on, or nil when it is not
// exposed.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// OnStart is called when Server is started (see service.BaseService for details).
func (s *Server) OnStart() error {
	return s.startRPC()
}

// OnStop is called when Server is stopped (see service.BaseService for details).
func (s *Server) OnStop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.Logger.Error("error while shuting down RPC server", "error", err)
	}
}

func (s *Server) startRPC() error {
	if s.config.ListenAddress == "" {
		s.Logger.Info("Listen address not specified - RPC will not be exposed")
		return nil
	}
	parts := strings.SplitN(s.config.ListenAddress, "://", 2)
	if len(parts) != 2 {
		return errors.New("invalid RPC listen address: expecting tcp://host:port")
	}
	proto := parts[0]
	addr := parts[1]

	listener, err := net.Listen(proto, addr)
	if err != nil {
		return err
	}

	if s.config.MaxOpenConnections != 0 {
		s.Logger.Debug("limiting number of connections", "limit", s.config.MaxOpenConnections)
		listener = netutil.LimitListener(listener, s.config.MaxOpenConnections)
	}

	handler, err := json.GetHTTPHandler(s.node, s.Logger)
	if err != nil {
		_ = listener.Close()
		return err
	}

	if s.config.IsCorsEnabled() {
		s.Logger.Debug("CORS enabled",
			"origins", s.config.CORSAllowedOrigins,
			"methods", s.config.CORSAllowedMethods,
			"headers", s.config.CORSAllowedHeaders,
		)
		c := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSAllowedOrigins,
			AllowedMethods: s.config.CORSAllowedMethods,
			AllowedHeaders: s.config.CORSAllowedHeaders,
		})
		handler = c.Handler(handler)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 2,
	}
	go func() {
		s.Logger.Info("serving HTTP", "listen address", listener.Addr())
		err := s.server.Serve(listener)
		if err != http.ErrServerClosed {
			s.Logger.Error("error while serving HTTP", "error", err)
		}
	}()

	return nil
}
