package server

import (
	"fmt"

	"github.com/ExamTrust/ProctorGate/pkg/config"
	handlers "github.com/ExamTrust/ProctorGate/pkg/handlers/http"
	"github.com/sirupsen/logrus"
)

type (
	AdminServerDI struct {
		HandlerTransport handlers.HandlerTransport
		Config           *config.Config
		Logger           *logrus.Logger
	}
	AdminServer struct {
		*BaseServer
		handlerTransport handlers.HandlerTransport
	}
)

func NewAdminServer(di AdminServerDI) *AdminServer {
	return &AdminServer{
		BaseServer:       NewBaseServer(di.Config, di.Logger),
		handlerTransport: di.HandlerTransport,
	}
}

func (s *AdminServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.AdminPort)
	s.Logger.WithField("addr", addr).Info("starting admin server")
	return s.Router.Listen(addr)
}

func (s *AdminServer) setupRoutes() {
	v1 := s.Router.Group("/api/v1")
	{
		monitoring := v1.Group("/monitoring")
		{
			monitoring.Post("", s.handlerTransport.StartMonitoringHandler.Handle)
			monitoring.Get("", s.handlerTransport.ListSessionsHandler.Handle)
			monitoring.Delete("/:session_id", s.handlerTransport.EndMonitoringHandler.Handle)
			monitoring.Get("/:session_id/events", s.handlerTransport.ListSessionEventsHandler.Handle)
		}

		bans := v1.Group("/bans")
		{
			bans.Get("", s.handlerTransport.ListBansHandler.Handle)
			bans.Delete("/:identity", s.handlerTransport.UnbanHandler.Handle)
		}
	}
}

func (s *AdminServer) Shutdown() error {
	return s.Router.Shutdown()
}
