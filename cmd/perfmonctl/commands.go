// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/thediveo/perfmonirq"
	"github.com/thediveo/perfmonirq/config"
	"github.com/thediveo/perfmonirq/metrics"
)

// exitCode is returned from a command's RunE in order to terminate with a
// specific process exit code without printing an error message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// openSetup loads the device table and builds its devices.
func (o *rootOptions) openSetup() (*setup, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return newSetup(cfg, o.log)
}

// signalContext returns a context that gets cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, unix.SIGTERM)
}

// ioctl issues a perfmon request through the binary command surface of dev,
// decoding the (updated) request record afterwards.
func ioctl(ctx context.Context, dev *perfmonirq.Device, req *perfmonirq.Request) error {
	arg, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	if status := dev.Ioctl(ctx, arg); status != 0 {
		return errors.Errorf("%s request on device %q rejected: %s",
			req.Op, dev.Name(), unix.ErrnoName(unix.Errno(-status)))
	}
	return req.UnmarshalBinary(arg)
}

func newSetIRQsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set-irqs DEVICE on|off",
		Short:     "enable or disable the perfmon buffer interrupt of a device",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enable bool
			switch args[1] {
			case "on":
				enable = true
			case "off":
			default:
				return errors.Errorf("expected \"on\" or \"off\", got %q", args[1])
			}
			s, err := opts.openSetup()
			if err != nil {
				return err
			}
			defer s.Close()
			dev, err := s.device(args[0])
			if err != nil {
				return err
			}
			req := perfmonirq.Request{
				Op:      perfmonirq.OpSetBufferIRQs,
				SetIRQs: perfmonirq.SetIRQsArgs{Enable: enable},
			}
			if err := ioctl(cmd.Context(), dev, &req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: perfmon buffer interrupts %s\n",
				dev.Name(), onOff(dev.InterruptEnabled()))
			return nil
		},
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		timeoutMs   uint32
		noEnable    bool
		simInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait DEVICE",
		Short: "wait for the next perfmon buffer interrupt of a device",
		Long: `Waits for the next perfmon buffer interrupt of the specified device,
printing the wait outcome. The process exit status is the numeric wait outcome:
0 for OK, 1 for FAILED, 2 for TIMEOUT, and 3 for INTERRUPTED.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSetup()
			if err != nil {
				return err
			}
			defer s.Close()
			dev, err := s.device(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if !noEnable {
				req := perfmonirq.Request{
					Op:      perfmonirq.OpSetBufferIRQs,
					SetIRQs: perfmonirq.SetIRQsArgs{Enable: true},
				}
				if err := ioctl(ctx, dev, &req); err != nil {
					return err
				}
			}
			firectx, stopFiring := context.WithCancel(ctx)
			defer stopFiring()
			go s.fireSims(firectx, simInterval)

			req := perfmonirq.Request{
				Op:       perfmonirq.OpWaitBufferIRQs,
				WaitIRQs: perfmonirq.WaitIRQsArgs{TimeoutMs: timeoutMs},
			}
			if err := ioctl(ctx, dev, &req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), req.WaitIRQs.RetCode)
			if req.WaitIRQs.RetCode != perfmonirq.WaitOK {
				return exitCode(req.WaitIRQs.RetCode)
			}
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&timeoutMs, "timeout", "t", perfmonirq.MaxWaitTimeoutMs,
		"wait timeout in milliseconds")
	cmd.Flags().BoolVar(&noEnable, "no-enable", false,
		"do not enable the perfmon buffer interrupt before waiting")
	cmd.Flags().DurationVar(&simInterval, "sim-interval", 0,
		"fire the interrupts of simulated devices at this interval (0 = never)")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listen      string
		simInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start all devices and expose their metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSetup()
			if err != nil {
				return err
			}
			defer s.Close()
			for _, dev := range s.registry.Devices() {
				if err := dev.SetInterrupt(true); err != nil {
					opts.log.Info("perfmon interrupts not available",
						"device", dev.Name(), "error", err.Error())
				}
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			go s.fireSims(ctx, simInterval)

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return errors.Wrap(err, "cannot start metrics endpoint")
			}
			srv := &http.Server{
				Handler:           metricsHandler(s.registry),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			opts.log.Info("serving perfmon metrics",
				"address", lis.Addr().String(), "devices", s.registry.Names())
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "localhost:9109",
		"address to serve /metrics on")
	cmd.Flags().DurationVar(&simInterval, "sim-interval", 0,
		"fire the interrupts of simulated devices at this interval (0 = never)")
	return cmd
}

// metricsHandler returns an HTTP handler serving the perfmon metrics of the
// registered devices on /metrics.
func metricsHandler(devices metrics.Devices) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(devices))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
