package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/hako/durafmt"
	atomic_file "github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/idvault-io/idvault/vault"
	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "idvault"
	app.Usage = "Encrypted-at-rest vault for captured identity documents"
	app.Version = vault.Version
	app.Flags = getFlags()
	app.Commands = getCommands()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s (%v)\n", fault.Describe(err), err)
		os.Exit(1)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "data-dir, d",
			Usage: "store data in `DIR` (default: \"~/.idvault\")",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
			Value: "info",
		},
	}
}

func getCommands() []cli.Command {
	return []cli.Command{
		{
			Name:      "capture",
			Usage:     "encrypt and store image files",
			ArgsUsage: "FILE...",
			Action:    captureAction,
		},
		{
			Name:      "export",
			Usage:     "authenticate and write every stored image as PNG",
			ArgsUsage: "DIR",
			Action:    exportAction,
		},
		{
			Name:   "enroll",
			Usage:  "set the passphrase guarding access to stored images",
			Action: enrollAction,
		},
		{
			Name:   "status",
			Usage:  "show what is stored",
			Action: statusAction,
		},
	}
}

func newService(c *cli.Context) (*vault.Service, *vault.Config, error) {
	config, err := vault.NewConfig(c.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}
	if dir := c.GlobalString("data-dir"); dir != "" {
		config.DataDir = dir
	}
	if c.GlobalIsSet("level") {
		level, err := vault.GetLogLevel(c.GlobalString("level"))
		if err != nil {
			return nil, nil, err
		}
		config.LogLevel = level
	}
	log := logger.NewLogger(config.LogLevel)
	log.Silent(config.LogSilent)
	log.Prefix(commandPrefix(c))
	s, err := vault.New(config, vault.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	s.HandleSignals()
	return s, config, nil
}

func captureAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("capture requires at least one FILE", 2)
	}
	s, config, err := newService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	for _, path := range c.Args() {
		name, err := s.CaptureFrom(ctx, vault.NewFileCapturer(path, config.JPEGQuality))
		if err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Printf("%s -> %s\n", path, name)
	}
	return nil
}

func exportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("export requires a DIR", 2)
	}
	s, _, err := newService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.LoadAll(context.Background())
	if err != nil {
		return err
	}
	dir := c.Args().First()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for _, img := range result.Images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img.Image); err != nil {
			return errors.Wrapf(err, "failed to encode %s", img.Name)
		}
		path := filepath.Join(dir, exportFileName(img.Name))
		if err := atomic_file.WriteFile(path, &buf); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}
	fmt.Printf("Exported %s %s to %s\n",
		humanize.Comma(int64(len(result.Images))), english.PluralWord(len(result.Images), "image", ""), dir)
	if result.Skipped > 0 {
		fmt.Printf("Skipped %s unreadable %s\n",
			humanize.Comma(int64(result.Skipped)), english.PluralWord(result.Skipped, "record", ""))
	}
	return nil
}

func enrollAction(c *cli.Context) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fault.Wrap(fault.ErrBiometryPermissionDenied, errors.New("enroll needs a terminal"))
	}
	s, _, err := newService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	enrolled, err := s.Enrolled()
	if err != nil {
		return err
	}
	if enrolled {
		fmt.Println("Enter the current passphrase to replace it")
		if err := s.Authenticate(ctx); err != nil {
			return err
		}
	}
	passphrase, err := keyring.TerminalPrompt("New passphrase")
	if err != nil {
		return err
	}
	confirm, err := keyring.TerminalPrompt("Confirm passphrase")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return cli.NewExitError("passphrases do not match", 1)
	}
	if err := s.Enroll(ctx, passphrase); err != nil {
		return err
	}
	fmt.Println("Passphrase enrolled")
	return nil
}

func statusAction(c *cli.Context) error {
	s, config, err := newService(c)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.Status()
	if err != nil {
		return err
	}
	fmt.Printf("Vault:   %s\n", config.VaultDir())
	fmt.Printf("Records: %s (%s)\n", humanize.Comma(int64(status.Records)), humanize.Bytes(uint64(status.Bytes)))
	fmt.Printf("Format:  %s\n", config.Encryption.Format)
	fmt.Printf("Access:  %s after authentication\n", durafmt.Parse(status.TTL))
	return nil
}

// commandPrefix tags log lines with the running command.
func commandPrefix(c *cli.Context) string {
	if c.Command.Name == "" {
		return ""
	}
	return "[" + c.Command.Name + "] "
}

// exportFileName maps a record name to the PNG file it is exported to.
func exportFileName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
}
