package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/voxhold/internal/audio"
	"github.com/chaz8081/voxhold/internal/config"
	"github.com/chaz8081/voxhold/internal/hotkey"
	"github.com/chaz8081/voxhold/internal/inject"
	"github.com/chaz8081/voxhold/internal/trigger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", config.DefaultConfigPath())
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and report each profile's model and hotkey",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if path == "" {
			path = "(built-in defaults)"
		}
		fmt.Fprintf(out, "Config: %s\n", path)

		// Register against a throwaway coordinator so duplicate hotkeys are
		// reported the same way run reports them.
		coord := trigger.NewCoordinator(trigger.Options{})
		var problems int
		for _, p := range cfg.Profiles {
			combo, err := p.Combo()
			if err != nil {
				problems++
				fmt.Fprintf(out, "  %-12s hotkey: %v\n", p.Name, err)
				continue
			}
			if err := coord.Register(trigger.Profile{Name: p.Name, Combo: combo}, nopCapture{}); err != nil {
				problems++
				fmt.Fprintf(out, "  %-12s %v\n", p.Name, err)
				continue
			}
			model := "ok"
			if _, err := os.Stat(p.ModelPath); err != nil {
				problems++
				model = "missing, see 'voxhold models pull'"
			}
			fmt.Fprintf(out, "  %-12s %-16s %s (%s)\n", p.Name, combo.String(), p.ModelPath, model)
		}
		if problems > 0 {
			return fmt.Errorf("%d problem(s) found", problems)
		}
		return nil
	},
}

// nopCapture lets check register profiles without opening a device.
type nopCapture struct{}

func (nopCapture) Start() error                 { return nil }
func (nopCapture) Stop() (audio.Capture, error) { return audio.Capture{}, nil }

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print hotkey events for the configured profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		var bindings []hotkey.Binding
		for _, p := range cfg.Profiles {
			combo, err := p.Combo()
			if err != nil {
				return fmt.Errorf("profile %q: %w", p.Name, err)
			}
			bindings = append(bindings, hotkey.Binding{Profile: p.Name, Combo: combo})
			fmt.Fprintf(out, "Listening for %s (%s)\n", combo.String(), p.Name)
		}
		fmt.Fprintln(out, "Press Ctrl+C to exit.")

		listener := hotkey.NewListener(bindings)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			fmt.Fprintln(out, "\nShutting down...")
			listener.Stop()
		}()

		go func() {
			for ev := range listener.Events() {
				fmt.Fprintf(out, "%s %-8s %s\n", time.Now().Format("15:04:05.000"), ev.Kind.String(), ev.Profile)
			}
		}()

		// Blocks until stopped.
		listener.Start()
		return nil
	},
}

var injectMethod string

var injectCmd = &cobra.Command{
	Use:   "inject [text]",
	Short: "Deliver test text into the focused window after a countdown",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := "Hello from voxhold!"
		if len(args) > 0 {
			text = strings.Join(args, " ")
		}

		inj, err := inject.NewInjector(inject.Method(injectMethod))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Will deliver %q using %q in 3 seconds...\n", text, inj.Method())
		fmt.Fprintln(out, "Focus a text editor now!")
		for i := 3; i > 0; i-- {
			fmt.Fprintf(out, "%d...\n", i)
			time.Sleep(time.Second)
		}

		if err := inj.Deliver(text); err != nil {
			var de *inject.DeliveryError
			if errors.As(err, &de) {
				return fmt.Errorf("%w\n\nCheck accessibility permissions for your terminal", err)
			}
			return err
		}
		fmt.Fprintln(out, "Done!")
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewMalgoBackend(nil)
		if err != nil {
			return err
		}
		defer backend.Close()

		names, err := backend.CaptureDevices()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No capture devices found.")
			return nil
		}
		for i, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i, name)
		}
		return nil
	},
}

func init() {
	injectCmd.Flags().StringVarP(&injectMethod, "method", "m", string(inject.MethodType), "delivery method: type or paste")
}
