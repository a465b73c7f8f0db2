package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sstanfield/ahnd/agent"
	"github.com/sstanfield/ahnd/config"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/spf13/cobra"
)

const shutdownDrain = 5 * time.Second

var cfg = config.Default()
var configPath string

type cmdSubject struct{}

func (cmdSubject) String() string { return "cmd" }

// CmdAhnd is the agent's command-line entry point: ahnd <own-prefix>.
var CmdAhnd = &cobra.Command{
	Use:     "ahnd <own-prefix>",
	Short:   "Auto-discovery agent for ad-hoc NDN networks",
	Version: "0.1.0",
	Args:    cobra.ExactArgs(1),
	Run:     run,
}

func init() {
	flags := CmdAhnd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&cfg.BroadcastPrefix, "broadcast-prefix", cfg.BroadcastPrefix, "Multicast discovery prefix")
	flags.Uint16Var(&cfg.Port, "port", cfg.Port, "UDP port advertised in discovery messages")
	flags.StringVar(&cfg.ControlSocketPath, "control-socket", cfg.ControlSocketPath, "Path to the local control socket")
	flags.DurationVar(&cfg.KeepaliveInterval, "keepalive-interval", cfg.KeepaliveInterval, "Interval between keepalive rounds")
	flags.StringVar(&cfg.PibPath, "pib", cfg.PibPath, "Path to the identity PIB database")
	flags.StringVar(&cfg.TpmPath, "tpm", cfg.TpmPath, "Path to the identity TPM key file")
	flags.IntVar(&cfg.MaxControlClients, "max-control-clients", cfg.MaxControlClients, "Maximum concurrent control socket clients")
}

func run(cmd *cobra.Command, args []string) {
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ahnd: config:", err)
			os.Exit(1)
		}
		// File values fill in anything the user didn't pass as a flag;
		// explicit flags still win over the file.
		flags := cmd.Flags()
		if !flags.Changed("broadcast-prefix") {
			cfg.BroadcastPrefix = fileCfg.BroadcastPrefix
		}
		if !flags.Changed("port") {
			cfg.Port = fileCfg.Port
		}
		if !flags.Changed("control-socket") {
			cfg.ControlSocketPath = fileCfg.ControlSocketPath
		}
		if !flags.Changed("keepalive-interval") {
			cfg.KeepaliveInterval = fileCfg.KeepaliveInterval
		}
		if !flags.Changed("pib") {
			cfg.PibPath = fileCfg.PibPath
		}
		if !flags.Changed("tpm") {
			cfg.TpmPath = fileCfg.TpmPath
		}
		if !flags.Changed("max-control-clients") {
			cfg.MaxControlClients = fileCfg.MaxControlClients
		}
	}
	cfg.OwnPrefix = args[0]

	if err := cfg.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, "ahnd:", err)
		os.Exit(1)
	}

	ownPrefix, err := enc.NameFromStr(cfg.OwnPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahnd: invalid own prefix:", err)
		os.Exit(1)
	}
	broadcastPrefix, err := enc.NameFromStr(cfg.BroadcastPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahnd: invalid broadcast prefix:", err)
		os.Exit(1)
	}

	a, err := agent.New(agent.Options{
		OwnPrefix:         ownPrefix,
		BroadcastPrefix:   broadcastPrefix,
		Port:              cfg.Port,
		ControlSocketPath: cfg.ControlSocketPath,
		KeepaliveInterval: cfg.KeepaliveInterval,
		PibPath:           cfg.PibPath,
		TpmPath:           cfg.TpmPath,
		MaxControlClients: cfg.MaxControlClients,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahnd:", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "ahnd:", err)
		os.Exit(1)
	}

	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	receivedSig := <-sigChannel
	log.Info(cmdSubject{}, "Received signal - exiting", "signal", receivedSig)

	a.RequestShutdown()

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownDrain):
		fmt.Fprintln(os.Stderr, "ahnd: shutdown drain timed out")
	}
}
