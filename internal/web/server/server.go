// Package server runs the operator API over HTTP with production timeouts
// and graceful shutdown.
package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server wraps http.Server with its listener.
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	hooks    []ShutdownHook
}

// Config holds server configuration
type Config struct {
	// Address is the listen address, e.g. "localhost:8080"
	Address string

	// Handler serves every request
	Handler http.Handler

	// TLS enables HTTPS when set
	TLS *TLSConfig

	// Timeouts
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration

	// Connection limits
	MaxHeaderBytes int

	Logger *zap.Logger
}

// TLSConfig holds TLS/SSL configuration
type TLSConfig struct {
	CertFile string
	KeyFile  string

	// MinVersion defaults to TLS 1.2
	MinVersion uint16
}

// DefaultConfig returns a production-ready server configuration
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// New creates a server. Nothing listens until Start or Run.
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if config.TLS != nil && (config.TLS.CertFile == "" || config.TLS.KeyFile == "") {
		return nil, errors.New("tls requires both a certificate and a key file")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	if config.TLS != nil {
		httpServer.TLSConfig = buildTLSConfig(config.TLS)
	}

	return &Server{
		httpServer: httpServer,
		config:     config,
		logger:     logger,
	}, nil
}

// Listen binds the listen address. Start and Run call it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Start serves until the server is shut down. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.Info("server listening", zap.String("addr", s.Addr()), zap.Bool("tls", s.config.TLS != nil))
	if s.config.TLS != nil {
		return s.httpServer.ServeTLS(s.listener, s.config.TLS.CertFile, s.config.TLS.KeyFile)
	}
	return s.httpServer.Serve(s.listener)
}

// Close immediately closes the server and its listener
func (s *Server) Close() error {
	err := s.httpServer.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return err
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func buildTLSConfig(cfg *TLSConfig) *tls.Config {
	minVersion := cfg.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		MinVersion: minVersion,
		NextProtos: []string{"h2", "http/1.1"},
	}
}
