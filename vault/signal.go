package vault

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
)

// HandleSignals sets up a handler for SIGINT and SIGTERM that closes the
// service, wipes protected memory and exits.
func (s *Service) HandleSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		s.logger.Infof("Received %v, shutting down", sig)
		s.Close()
		memguard.SafeExit(0)
	}()
}
