package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"solidus/core"
	"solidus/pkg/config"
	"solidus/pkg/rpcserver"
)

func main() {
	rootCmd := &cobra.Command{Use: "sovereignd"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(balanceCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run a sovereignd node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			return runNode(cfg)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay config to merge (e.g. prod, dev)")
	return cmd
}

func runNode(cfg *config.Config) error {
	logger := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}

	var beneficiary core.Address
	if cfg.Mining.Address != "" {
		raw, err := hex.DecodeString(cfg.Mining.Address)
		if err != nil || len(raw) != len(beneficiary) {
			return fmt.Errorf("mining.address must be a %d-byte hex string", len(beneficiary))
		}
		copy(beneficiary[:], raw)
	}

	nodeCfg := core.NodeConfig{
		Ledger: core.LedgerConfig{
			DataDir:           cfg.Storage.DataDir,
			ChainID:           cfg.Network.ChainID,
			InitialDifficulty: cfg.Consensus.InitialDifficulty,
			GenesisAllocPath:  cfg.Storage.GenesisAllocFile,
		},
		Network: core.NetworkConfig{
			ListenAddr:           cfg.Network.ListenAddr,
			BootstrapPeers:       cfg.Network.BootstrapPeers,
			DiscoveryTag:         cfg.Network.DiscoveryTag,
			EnableLocalDiscovery: cfg.Network.EnableLocalDiscovery,
			EnableNATTraversal:   cfg.Network.EnableNATTraversal,
			MaxInboundPeers:      cfg.Network.MaxInboundPeers,
			MaxOutboundPeers:     cfg.Network.MaxOutboundPeers,
			MaxPeersPerOrigin:    cfg.Network.MaxPeersPerOrigin,
		},
		MiningEnabled: cfg.Mining.Enabled,
		MiningThreads: cfg.Mining.Threads,
		MiningAddress: beneficiary,
	}

	node, err := core.NewSovereignNode(nodeCfg, logger)
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start networking: %w", err)
	}

	if nodeCfg.MiningEnabled {
		node.StartMining(beneficiary)
		logger.Infof("mining enabled, beneficiary=%x", beneficiary)
	}

	var rpcSrv *rpcserver.Server
	if cfg.RPC.Enabled {
		rpcSrv, err = rpcserver.New(node, cfg.RPC.ListenAddr)
		if err != nil {
			return fmt.Errorf("start rpc server: %w", err)
		}
		go func() {
			if err := rpcSrv.ListenAndServe(); err != nil {
				logger.Errorf("rpc server: %v", err)
			}
		}()
		logger.Infof("rpc listening on %s", cfg.RPC.ListenAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if rpcSrv != nil {
		_ = rpcSrv.Close()
	}
	return node.Stop()
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a new keypair and print the address and private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := core.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Printf("address:     %x\n", pub)
			fmt.Printf("private_key: %x\n", priv)
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	var dataDir string
	var chainID uint32
	cmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "print an address's committed balance and nonce from a local data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			var addr core.Address
			if len(raw) != len(addr) {
				return fmt.Errorf("address must be %d bytes", len(addr))
			}
			copy(addr[:], raw)

			ledger, err := core.OpenLedger(core.LedgerConfig{DataDir: dataDir, ChainID: chainID}, nil, nil)
			if err != nil {
				return err
			}
			defer ledger.Close()

			fmt.Printf("balance: %d\n", ledger.BalanceOf(addr))
			fmt.Printf("nonce:   %d\n", ledger.NonceOf(addr))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "node data directory")
	cmd.Flags().Uint32Var(&chainID, "chain-id", 963, "chain ID")
	return cmd
}
