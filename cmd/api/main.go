package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voting-ledger/api"
	"voting-ledger/service"
	"voting-ledger/storage"
)

var (
	storageDir string
	port       int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "voting-ledger",
	Short: "Trust-anchored voting ledger",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voting ledger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		absPath, err := filepath.Abs(storageDir)
		if err != nil {
			return err
		}

		authorityKey, err := service.LoadOrGenerateAuthorityKey(absPath)
		if err != nil {
			return err
		}
		authority := crypto.PubkeyToAddress(authorityKey.PublicKey)

		store, err := storage.NewJSONStore(absPath)
		if err != nil {
			return err
		}

		ledger, err := service.NewVotingLedger(authority, store)
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"authority": authority.Hex(),
			"storage":   absPath,
		}).Info("Voting ledger initialized")

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := api.NewServer(ledger)
		return server.Start(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().StringVar(&storageDir, "storage", "data", "Directory for ledger storage")
	serveCmd.Flags().IntVar(&port, "port", 8080, "Server port")
	serveCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("Command failed")
	}
}
