// Package cluster determines this node's cluster role and carries relayed
// requests between workers and the master.
package cluster

import (
	"strings"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/config"
	"github.com/pkg/errors"
)

// Role is the part a node plays in the cluster.
type Role string

const (
	// Master nodes talk to the task manager directly.
	Master Role = "master"
	// Worker nodes relay task manager requests through the master.
	Worker Role = "worker"
)

// ParseRole converts a configured node type into a Role. An empty node type
// is a standalone node, which behaves as a master.
func ParseRole(nodeType string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(nodeType)) {
	case "", string(Master):
		return Master, nil
	case string(Worker):
		return Worker, nil
	default:
		return "", errors.Errorf("unknown cluster node type %q", nodeType)
	}
}

// RoleSource reports the node's current role. Implementations are consulted
// on every call and must not assume the role is fixed for the process.
type RoleSource interface {
	Role() (Role, error)
}

// StaticRole is a RoleSource that never changes.
type StaticRole Role

// Role returns the fixed role.
func (s StaticRole) Role() (Role, error) {
	return Role(s), nil
}

// ConfigRole reads the role from the configuration file on every call so that
// nodes can be promoted or demoted without a restart.
type ConfigRole struct {
	Path string
}

// Role loads the configuration and reports its cluster node type.
func (c *ConfigRole) Role() (Role, error) {
	cfg, err := config.Load(c.Path)
	if err != nil {
		return "", errors.WithMessage(err, "unable to read cluster role")
	}
	return FromConfig(cfg)
}

// FromConfig reports the role configured in cfg. Nodes with clustering
// disabled act as masters.
func FromConfig(cfg *config.Config) (Role, error) {
	if cfg.Cluster.Disabled {
		return Master, nil
	}
	return ParseRole(cfg.Cluster.NodeType)
}
