// Package systemd checks on the task manager's unit and reports daemon
// readiness to the service manager.
package systemd

import (
	"context"
	"os"
	"strconv"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	systemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/daemon"
	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// DefaultSocket is systemd's private bus socket.
const DefaultSocket = "/run/systemd/private"

const activeState = "active"

// ErrUnitInactive is returned when the checked unit is not running.
var ErrUnitInactive = errors.New("unit is not active")

// Manager talks to systemd over its private socket.
type Manager struct {
	log    logging.Logger
	socket string
}

// New creates a Manager connecting through socket, or DefaultSocket if empty.
func New(log logging.Logger, socket string) *Manager {
	if socket == "" {
		socket = DefaultSocket
	}
	return &Manager{log: log, socket: socket}
}

// Available reports whether the process can reach systemd at all.
func (m *Manager) Available() bool {
	// The private socket needs root.
	if uid := os.Getuid(); uid != 0 {
		m.log.WithField("uid", uid).Debug("requires root")
		return false
	}
	stat, err := os.Stat(m.socket)
	if err != nil {
		m.log.WithField("socket", m.socket).Debug("requires systemd socket at path")
		return false
	}
	if stat.Mode()&os.ModeSocket != os.ModeSocket {
		m.log.WithField("socket", m.socket).Debug("requires systemd unix socket access")
		return false
	}
	return true
}

// CheckActive returns nil when unit is active, ErrUnitInactive when it is
// loaded in any other state.
func (m *Manager) CheckActive(ctx context.Context, unit string) error {
	conn, err := m.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	prop, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return errors.Wrapf(err, "unable to query unit %s", unit)
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		m.log.Debugf("property object %#v", prop)
		return errors.Errorf("unable to handle queried property: %q", prop.Name)
	}
	m.log.WithField("unit", unit).WithField("ActiveState", state).Debug("queried unit state")
	if state != activeState {
		return errors.Wrapf(ErrUnitInactive, "%s is %s", unit, state)
	}
	return nil
}

func (m *Manager) connect() (*systemd.Conn, error) {
	dialer := func() (*dbus.Conn, error) {
		conn, err := dbus.Dial("unix:path=" + m.socket)
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to systemd socket")
		}
		methods := []dbus.Auth{dbus.AuthExternal(strconv.Itoa(os.Getuid()))}
		if err := conn.Auth(methods); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "unable to authenticate with systemd")
		}
		return conn, nil
	}
	conn, err := systemd.NewConnection(dialer)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to systemd")
	}
	return conn, nil
}

// NotifyReady tells the service manager that startup finished. It reports
// false when the daemon was not started with a notification socket.
func NotifyReady() (bool, error) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return sent, errors.Wrap(err, "unable to notify service manager")
}

// NotifyStopping tells the service manager that shutdown began.
func NotifyStopping() (bool, error) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	return sent, errors.Wrap(err, "unable to notify service manager")
}
