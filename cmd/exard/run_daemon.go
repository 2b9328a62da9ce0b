package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exardb/exar/config"
	"github.com/exardb/exar/internal/auth"
	"github.com/exardb/exar/store"
)

func runDaemon(args []string) {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := serveCmd.String("c", "exar.yaml", "path to the configuration file")
	hostFlag := serveCmd.String("host", "", "override the configured host")
	portFlag := serveCmd.Int("port", 0, "override the configured port")
	adminAddr := serveCmd.String("admin", "127.0.0.1:7791", "admin HTTP listen address, empty disables it")

	if serveCmd.Parse(args) != nil {
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("loading config %s: %s", *configPath, err)
	}
	if *hostFlag != "" {
		cfg.Host = *hostFlag
	}
	if *portFlag != 0 {
		cfg.Port = *portFlag
	}

	authProvider, err := auth.FromConfig(cfg)
	if err != nil {
		logger.Fatalf("building auth provider: %s", err)
	}

	s := &server{
		logger: logger,
		store:  store.New(cfg, logger.Printf),
		auth:   authProvider,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal(err)
	}
	var adminListener net.Listener
	if *adminAddr != "" {
		adminListener, err = net.Listen("tcp", *adminAddr)
		if err != nil {
			logger.Fatal(err)
		}
	}

	go func() {
		logger.Printf("exard %s listening on %s", version, tcpListener.Addr())
		if err := s.Serve(tcpListener, adminListener); err != nil {
			logger.Fatal(err)
		}
	}()

	c := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C);
	// SIGKILL will not be caught.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.Shutdown(ctx)
}

// runCheckConfig loads and validates a configuration file without
// starting the server.
func runCheckConfig(args []string) {
	checkCmd := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := checkCmd.String("c", "exar.yaml", "path to the configuration file")
	if checkCmd.Parse(args) != nil {
		os.Exit(1)
	}
	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", *configPath, err)
		os.Exit(1)
	}
	fmt.Printf("%s: ok\n", *configPath)
}
