package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/config"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/control"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/exchange"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/platform/systemd"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/registry"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/sigcontext"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/task"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/upgrade"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/workgroup"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const lockTimeout = 10 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the daemon",
		Action: func(c *cli.Context) error {
			cfg, path, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx, cancel := sigcontext.WithSignalCancel(c.Context, logging.New("signal"), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runDaemon(ctx, cfg, path)
		},
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, path string) (err error) {
	log := logging.New("daemon")

	fileLock := flock.New(cfg.LockFile)
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	ok, err := fileLock.TryLockContext(lockCtx, 500*time.Millisecond)
	if err != nil {
		return errors.Wrapf(err, "unable to acquire lock %s", cfg.LockFile)
	}
	if !ok {
		return errors.Errorf("lock %s is held, is another instance running", cfg.LockFile)
	}
	defer func() {
		if unlockErr := fileLock.Unlock(); unlockErr != nil && err == nil {
			err = errors.Wrap(unlockErr, "unable to release lock")
		}
	}()

	svc, err := newServices(cfg, path)
	if err != nil {
		return err
	}
	defer svc.Close()

	role, err := svc.role.Role()
	if err != nil {
		return errors.WithMessage(err, "unable to determine cluster role")
	}
	log = log.WithField("role", role)
	if role == cluster.Master && cfg.TaskManagerUnit != "" {
		if err := preflight(ctx, cfg.TaskManagerUnit); err != nil {
			return err
		}
	}

	reg := registry.New(logging.New("registry"))
	defer reg.Close()
	dispatcher := upgrade.NewDispatcher(logging.New("dispatch"), reg, svc.router)
	sweeper := upgrade.NewSweeper(logging.New("sweep"), reg, cfg.SweepInterval(), cfg.TaskTimeout())

	server := control.NewServer(logging.New("control"), cfg.ControlSocketPath(), cfg.MaxMessageSize,
		cfg.SocketTimeoutDuration(), upgrade.Handler(logging.Sub(log, "control"), dispatcher))

	group := workgroup.WithContext(ctx)
	group.Work(sweeper.Run)
	group.Work(server.Serve)
	if svc.nats != nil {
		responder := cluster.NewResponder(logging.New("responder"), svc.nats, cfg.Cluster.Subject)
		if role == cluster.Master {
			group.Work(func(ctx context.Context) error {
				return responder.Serve(ctx, cluster.CommandSendSync,
					exchange.RelayHandler(logging.Sub(log, cluster.CommandSendSync), svc.master))
			})
		}
		group.Work(func(ctx context.Context) error {
			return responder.Serve(ctx, upgrade.CommandUpgrade,
				upgrade.Handler(logging.Sub(log, upgrade.CommandUpgrade), dispatcher))
		})
	}

	if sent, err := systemd.NotifyReady(); err != nil {
		log.WithError(err).Warn("unable to signal readiness")
	} else if sent {
		log.Debug("signalled readiness")
	}
	log.Info("running")

	err = group.Wait()
	if _, notifyErr := systemd.NotifyStopping(); notifyErr != nil {
		log.WithError(notifyErr).Warn("unable to signal shutdown")
	}
	log.WithField("tracked", reg.Len()).Info("stopped")
	return errors.WithMessage(err, "run error")
}

// preflight refuses to start a master whose task manager is not running.
func preflight(ctx context.Context, unit string) error {
	log := logging.New("preflight")
	m := systemd.New(log, "")
	if !m.Available() {
		log.WithField("unit", unit).Info("systemd not reachable, skipping task manager check")
		return nil
	}
	if err := m.CheckActive(ctx, unit); err != nil {
		return errors.WithMessage(err, "task manager is not running")
	}
	log.WithField("unit", unit).Debug("task manager is active")
	return nil
}

func upgradeCommand() *cli.Command {
	return &cli.Command{
		Name:      "upgrade",
		Usage:     "request upgrade tasks for agents and print the task manager's answer",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:     "agent",
				Aliases:  []string{"a"},
				Usage:    "agent id to upgrade, may be repeated",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "command",
				Usage: "upgrade command to file the tasks under",
				Value: task.CommandUpgrade,
			},
			&cli.BoolFlag{
				Name:  "daemon",
				Usage: "hand the request to the running daemon instead of dispatching it here",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, path, err := loadConfig(c)
			if err != nil {
				return err
			}
			req := upgrade.Request{Agents: c.IntSlice("agent"), Command: c.String("command")}
			if c.Bool("daemon") {
				return upgradeThroughDaemon(c, cfg, req)
			}

			svc, err := newServices(cfg, path)
			if err != nil {
				return err
			}
			defer svc.Close()

			reg := registry.New(logging.New("registry"))
			defer reg.Close()
			d := upgrade.NewDispatcher(logging.New("dispatch"), reg, svc.router)

			report, err := d.Dispatch(c.Context, req.Tasks())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return errors.Wrap(enc.Encode(report), "unable to print results")
		},
	}
}

// upgradeThroughDaemon sends req over the daemon's control socket and prints
// its reply.
func upgradeThroughDaemon(c *cli.Context, cfg *config.Config, req upgrade.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "unable to encode upgrade request")
	}
	// The daemon answers only after its own exchange with the task manager.
	timeout := 3 * cfg.SocketTimeoutDuration()
	raw, err := control.Call(cfg.ControlSocketPath(), cfg.MaxMessageSize, timeout, payload)
	if err != nil {
		return err
	}
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return errors.Wrap(err, "invalid reply from daemon")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return errors.Wrap(err, "invalid reply from daemon")
	}
	out.WriteByte('\n')
	if _, err := out.WriteTo(c.App.Writer); err != nil {
		return errors.Wrap(err, "unable to print results")
	}
	if reply.Error != "" {
		return errors.Errorf("daemon: %s", reply.Error)
	}
	return nil
}

func roleCommand() *cli.Command {
	return &cli.Command{
		Name:  "role",
		Usage: "print the node's current cluster role",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			role, err := cluster.FromConfig(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, role)
			return err
		},
	}
}
