// Command test-hotkey is a manual test for the drive key listener.
// Run it, then press the configured drive keys to see events and the
// roll each key state would produce. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--config path]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/gosphero/internal/config"
	"github.com/chaz8081/gosphero/internal/drive"
	"github.com/chaz8081/gosphero/internal/hotkey"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gosphero/config.yaml)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	k := cfg.Drive.Keys
	bindings := drive.Bindings{Forward: k.Forward, Backward: k.Backward, Left: k.Left, Right: k.Right, Stop: k.Stop}
	fmt.Printf("Listening for %v...\n", k.All())
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(k.All())

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		var held drive.Keys
		for ev := range listener.Events() {
			var stop bool
			held, stop = bindings.Apply(held, ev.Key, ev.Down)
			angle, magnitude := held.Vector()
			speed, heading := drive.Joystick(angle, magnitude, cfg.Drive.Speed)
			switch {
			case stop:
				fmt.Printf("%-6s STOP\n", ev.Key)
			case ev.Down:
				fmt.Printf("%-6s down  -> roll speed=%3d heading=%3d\n", ev.Key, speed, heading)
			default:
				fmt.Printf("%-6s up    -> roll speed=%3d heading=%3d\n", ev.Key, speed, heading)
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
