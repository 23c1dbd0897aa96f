// Package server wires together one replica's components — transport,
// admin HTTP surface, and the event loop — and runs them until SIGTERM.
package server

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnavsood/raftkv/internal/adminhttp"
	"github.com/arnavsood/raftkv/internal/clusterconfig"
	"github.com/arnavsood/raftkv/internal/replica"
	"github.com/arnavsood/raftkv/internal/udpconn"
)

// Run implements the process-level contract of spec §6: parse
// `<port> <id> <peer_id>...` from argv, optionally overlay tuning from a
// `-config` YAML file, bind the UDP socket, start the read-only admin HTTP
// surface, and run the replica event loop until SIGTERM (exit 0 only
// then).
func Run() error {
	configPath := flag.String("config", "", "optional YAML tuning overlay (never port/id/peers)")
	flag.Parse()

	cfg, err := clusterconfig.ParseArgs(flag.Args())
	if err != nil {
		return err
	}
	cfg, err = clusterconfig.ApplyOverlay(cfg, *configPath)
	if err != nil {
		return err
	}

	log.Printf("starting replica %s on port %d with peers %v", cfg.SelfID, cfg.Port, cfg.PeerIDs)

	peerAddrs, err := clusterconfig.PeerAddrs(cfg.PeerIDs)
	if err != nil {
		return err
	}
	conn, err := udpconn.Dial(cfg.Port, peerAddrs)
	if err != nil {
		return err
	}
	defer conn.Close()

	node := replica.New(replica.Config{
		ID:     cfg.SelfID,
		Peers:  cfg.PeerIDs,
		Timing: cfg.Timing,
	}, conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{Addr: cfg.AdminAddr, Handler: adminhttp.New(node).Handler()}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("admin http server stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Run(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("shutting down...")
		if adminSrv != nil {
			adminSrv.Shutdown(context.Background())
		}
		return <-errCh
	}
}
