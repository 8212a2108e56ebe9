package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"roomchat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := server.ConfigFromEnv()

	addr    := flag.String("addr", cfg.Addr, "TCP address to listen on")
	wsAddr  := flag.String("ws", cfg.WSAddr, "WebSocket address to listen on (empty disables)")
	origins := flag.String("origins", strings.Join(cfg.AllowedOrigins, ","), "comma-separated WebSocket origins (\"*\" allows any)")
	buffer  := flag.Int("send-buffer", cfg.SendBuffer, "outbound lines queued per connection before it is dropped")
	maxLine := flag.Int("max-line", cfg.MaxLineLength, "maximum line length in bytes")
	idle    := flag.Duration("idle", cfg.IdleTimeout, "disconnect connections idle for this long")
	rate    := flag.Float64("rate", cfg.MessageRate, "chat lines per second per connection (negative disables)")
	burst   := flag.Int("burst", cfg.MessageBurst, "chat burst size per connection")
	flag.Parse()

	cfg.Addr = *addr
	cfg.WSAddr = *wsAddr
	cfg.AllowedOrigins = nil
	if *origins != "" {
		cfg.AllowedOrigins = strings.Split(*origins, ",")
	}
	cfg.SendBuffer = *buffer
	cfg.MaxLineLength = *maxLine
	cfg.IdleTimeout = *idle
	cfg.MessageRate = *rate
	cfg.MessageBurst = *burst

	srv := server.New(cfg)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Printf("[server] listen %s: %v", cfg.Addr, err)
		os.Exit(1)
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			log.Printf("[server] stopped: %v", err)
		}
	}()

	if cfg.WSAddr != "" {
		go func() {
			if err := srv.ListenAndServeWebSocket(cfg.WSAddr); err != nil {
				log.Printf("[server] websocket stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("[server] exited with code %d", exitCode)
	os.Exit(exitCode)
}
