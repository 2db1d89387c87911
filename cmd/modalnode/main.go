// Package main is the modalnode binary: a consensus-stack full node running
// the PoW miner chain, the Narwhal DAG, and Shoal BFT consensus over a
// libp2p transport.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/modality-network/modalnode/node"
	"github.com/modality-network/modalnode/p2p"
	sharedcmd "github.com/modality-network/modalnode/shared/cmd"
	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/shared/version"
)

func main() {
	log := logrus.WithField("prefix", "main")

	app := cli.NewApp()
	app.Name = "modalnode"
	app.Usage = "a PoW miner chain, Narwhal DAG, and Shoal BFT consensus node"
	app.Version = version.String()
	app.Flags = sharedcmd.Flags
	app.Action = runNode

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("modalnode exited with an error")
		os.Exit(1)
	}
}

func runNode(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String(sharedcmd.VerbosityFlag.Name))
	if err != nil {
		return fmt.Errorf("parsing verbosity: %w", err)
	}
	logrus.SetLevel(level)

	netCfg, err := loadNetworkConfig(ctx)
	if err != nil {
		return err
	}
	params.UseNetworkConfig(netCfg)

	if ctx.Bool(sharedcmd.MineFlag.Name) && ctx.String(sharedcmd.NominatedPeerIDFlag.Name) == "" {
		return fmt.Errorf("%s is required when %s is set", sharedcmd.NominatedPeerIDFlag.Name, sharedcmd.MineFlag.Name)
	}

	p2pCfg := p2p.DefaultConfig()
	p2pCfg.TCPPort = ctx.Uint(sharedcmd.P2PPortFlag.Name)
	p2pCfg.BootstrapPeers = ctx.StringSlice(sharedcmd.BootstrapPeersFlag.Name)

	cfg := &node.Config{
		DataDir:         ctx.String(sharedcmd.DataDirFlag.Name),
		Network:         netCfg,
		P2P:             p2pCfg,
		Mine:            ctx.Bool(sharedcmd.MineFlag.Name),
		NominatedPeerID: ctx.String(sharedcmd.NominatedPeerIDFlag.Name),
		MinerNumber:     1,
		GenesisDataHash: "modal-genesis",
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}
	n.Start()

	waitForShutdown()

	return n.Close()
}

// loadNetworkConfig resolves the active network parameters: a TOML file if
// given, otherwise the named preset.
func loadNetworkConfig(ctx *cli.Context) (*params.NetworkConfig, error) {
	if path := ctx.String(sharedcmd.NetworkConfigFlag.Name); path != "" {
		return params.LoadFromFile(path)
	}

	switch preset := ctx.String(sharedcmd.NetworkPresetFlag.Name); preset {
	case "", "mainnet":
		return params.MainnetConfig(), nil
	case "test":
		return params.TestConfig(), nil
	default:
		return nil, fmt.Errorf("unknown network preset %q", preset)
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, the same interrupt
// handling as the teacher's own BeaconNode.Start.
func waitForShutdown() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	<-sigc
	logrus.WithField("prefix", "main").Info("received shutdown signal, stopping modalnode")
}
