// Package server реализует gRPC-сервер со стандартным сервисом проверки здоровья.
//
// Статус SERVING выставляется, пока хранилище отвечает на ping. Проверка
// повторяется с заданным интервалом до отмены контекста.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
)

// ServiceName имя сервиса в протоколе grpc.health.v1.
const ServiceName = "policysummarizer"

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server gRPC-сервер здоровья.
type Server struct {
	log      *slog.Logger
	pinger   Pinger
	interval time.Duration
	health   *health.Server
	grpc     *grpc.Server
}

// New создаёт сервер и регистрирует в нём сервис здоровья.
func New(log *slog.Logger, pinger Pinger, interval time.Duration) *Server {
	hs := health.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	return &Server{
		log:      log,
		pinger:   pinger,
		interval: interval,
		health:   hs,
		grpc:     g,
	}
}

// Check проверяет хранилище и обновляет статус.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		s.log.Warn("storage ping failed", sl.Err(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch обновляет статус каждые interval до отмены ctx.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve принимает соединения на lis до отмены ctx.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	const op = "server.Serve"
	go s.Watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()
	s.log.Info("gRPC health server starting", slog.String("address", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListenAndServe открывает TCP-порт addr и обслуживает его до отмены ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	const op = "server.ListenAndServe"
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.Serve(ctx, lis)
}
