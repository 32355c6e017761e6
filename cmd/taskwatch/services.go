package main

import (
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/config"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/exchange"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// services are the transports shared by the commands.
type services struct {
	role   cluster.RoleSource
	master *exchange.Master
	router *exchange.Router
	// nats is set when the cluster relays through a broker.
	nats *nats.Conn
}

func newServices(cfg *config.Config, path string) (*services, error) {
	s := &services{}

	if path != "" {
		s.role = &cluster.ConfigRole{Path: path}
	} else {
		role, err := cluster.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		s.role = cluster.StaticRole(role)
	}

	s.master = exchange.NewMaster(logging.New("master"),
		cfg.TaskSocketPath(), cfg.MaxMessageSize, cfg.SocketTimeoutDuration())

	var relay exchange.Relay
	switch cfg.Cluster.Relay {
	case config.RelayNATS:
		conn, err := cluster.Connect(cfg.Cluster.NATSURL, cfg.RelayTimeout())
		if err != nil {
			return nil, errors.WithMessage(err, "unable to reach cluster broker")
		}
		s.nats = conn
		relay = &cluster.NATSRelay{
			Conn:    conn,
			Subject: cfg.Cluster.Subject,
			Timeout: cfg.RelayTimeout(),
		}
	default:
		relay = &cluster.SocketRelay{
			Path:    cfg.ClusterSocketPath(),
			MaxSize: cfg.MaxMessageSize,
			Timeout: cfg.RelayTimeout(),
		}
	}
	worker := exchange.NewWorker(logging.New("worker"), relay)

	s.router = exchange.NewRouter(logging.New("router"), s.role, s.master, worker)
	return s, nil
}

func (s *services) Close() {
	if s.nats != nil {
		s.nats.Close()
	}
}
