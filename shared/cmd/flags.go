// Package cmd defines the command line flags shared by the modalnode binary.
package cmd

import "github.com/urfave/cli/v2"

var (
	// DataDirFlag defines the data directory root holding the six logical stores.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the miner/validator stores",
		Value: "./modal-data",
	}
	// NetworkConfigFlag points at an optional TOML network config file.
	NetworkConfigFlag = &cli.StringFlag{
		Name:  "network-config",
		Usage: "Path to a TOML network configuration file; mainnet defaults are used when omitted",
	}
	// NetworkPresetFlag selects a built-in config preset when no file is given.
	NetworkPresetFlag = &cli.StringFlag{
		Name:  "network-preset",
		Usage: "Built-in network preset (mainnet, test)",
		Value: "mainnet",
	}
	// VerbosityFlag controls logrus's configured level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// P2PPortFlag is the TCP port the libp2p host listens on.
	P2PPortFlag = &cli.UintFlag{
		Name:  "p2p-port",
		Usage: "TCP port for the libp2p host",
		Value: 4100,
	}
	// BootstrapPeersFlag lists multiaddrs to dial at startup.
	BootstrapPeersFlag = &cli.StringSliceFlag{
		Name:  "bootstrap-peer",
		Usage: "Multiaddr of a peer to dial at startup; may be repeated",
	}
	// MineFlag enables the mining loop on this node.
	MineFlag = &cli.BoolFlag{
		Name:  "mine",
		Usage: "Run the PoW mining loop against the local store",
	}
	// NominatedPeerIDFlag is this node's peer id to nominate into mined blocks.
	NominatedPeerIDFlag = &cli.StringFlag{
		Name:  "nominate",
		Usage: "Peer id to nominate into mined blocks",
	}
)

// Flags is the full flag set registered on the root command.
var Flags = []cli.Flag{
	DataDirFlag,
	NetworkConfigFlag,
	NetworkPresetFlag,
	VerbosityFlag,
	P2PPortFlag,
	BootstrapPeersFlag,
	MineFlag,
	NominatedPeerIDFlag,
}
