// Command zvtctl is a thin front-end over the feig package: one
// connection flag set shared by every subcommand, one subcommand per
// controller operation.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/op/go-logging"
	"github.com/urfave/cli"
	"github.com/youtube/vitess/go/ioutil2"

	"github.com/EVerest/zvt/feig"
	"github.com/EVerest/zvt/reconnect"
	"github.com/EVerest/zvt/zvtlog"
)

func controllerFromContext(c *cli.Context) (*feig.Controller, error) {
	ip := net.ParseIP(c.GlobalString("ip"))
	if ip == nil {
		return nil, fmt.Errorf("%q is not a valid IP address", c.GlobalString("ip"))
	}
	return feig.New(feig.Config{
		IPAddress:  ip,
		TerminalID: c.GlobalString("terminal-id"),
		FeigSerial: c.GlobalString("serial"),
		Port:       c.GlobalInt("port"),
		FeigConfig: reconnect.FeigConfig{
			Password:            c.GlobalUint64("password"),
			Currency:            currencyCode(c.GlobalString("currency")),
			PreAuthorizationAmount: int64(c.GlobalInt("preauth-amount")),
			ReadCardTimeout:     uint8(c.GlobalInt("read-card-timeout")),
			EndOfDayMaxInterval: c.GlobalDuration("end-of-day-max-interval"),
		},
	}), nil
}

func currencyCode(s string) uint64 {
	if code, ok := feig.Currencies[s]; ok {
		return code
	}
	var code uint64
	fmt.Sscanf(s, "%d", &code)
	return code
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
}

func configureAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := ctrl.Configure(ctx); err != nil {
		return err
	}
	fmt.Println(green("configured"))
	return nil
}

func readCardAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	info, err := ctrl.ReadCard(ctx)
	if err != nil {
		return err
	}
	switch info.Kind {
	case feig.CardKindBank:
		fmt.Println(green("bank card presented"))
	case feig.CardKindMembership:
		fmt.Println(green("membership card presented"), cyan(info.MembershipUUID))
	}
	return nil
}

func beginTransactionAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	token := c.String("token")
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := ctrl.BeginTransaction(ctx, token, uint64(c.Int("amount"))); err != nil {
		return err
	}
	fmt.Println(green("transaction begun for"), cyan(token))
	return nil
}

func cancelTransactionAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	token := c.String("token")
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := ctrl.CancelTransaction(ctx, token); err != nil {
		return err
	}
	fmt.Println(green("transaction canceled for"), cyan(token))
	return nil
}

func commitTransactionAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	token := c.String("token")
	if token == "" {
		return fmt.Errorf("--token is required")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	summary, err := ctrl.CommitTransaction(ctx, token, uint64(c.Int("amount")))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: terminal=%s amount=%d trace=%d date=%s time=%s\n",
		green("committed"), cyan(token), summary.TerminalID, summary.Amount,
		summary.TraceNumber, summary.Date, summary.Time)
	return nil
}

func updateFirmwareAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: zvtctl update-firmware [--force] <payload-dir>")
	}
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := ctrl.UpdateFirmware(ctx, c.Args().First(), c.Bool("force")); err != nil {
		return err
	}
	fmt.Println(green("firmware up to date"))
	return nil
}

func reconnectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: zvtctl reconnect <ip>")
	}
	ip := net.ParseIP(c.Args().First())
	if ip == nil {
		return fmt.Errorf("%q is not a valid IP address", c.Args().First())
	}
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := ctrl.Reconnect(ctx, ip); err != nil {
		return err
	}
	fmt.Println(green("reconnected to"), cyan(ip.String()))
	return nil
}

// statusAction mirrors the original diagnostic status tool: it connects,
// configures the terminal and dumps what it observed to a file, in
// addition to printing a short summary to stdout.
func statusAction(c *cli.Context) error {
	ctrl, err := controllerFromContext(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	start := time.Now()
	configureErr := ctrl.Configure(ctx)

	report := fmt.Sprintf("zvtctl status\nip=%s terminal-id=%s serial=%s\nconfigure duration=%s error=%v\n",
		c.GlobalString("ip"), c.GlobalString("terminal-id"), c.GlobalString("serial"),
		time.Since(start), configureErr)

	dumpPath := c.String("dump")
	if dumpPath != "" {
		if err := ioutil2.WriteFileAtomic(dumpPath, []byte(report), 0644); err != nil {
			zvtlog.Log.Warningf("zvtctl: failed to write status dump to %s: %v", dumpPath, err)
		} else {
			fmt.Println("wrote status dump to", cyan(dumpPath))
		}
	}

	if configureErr != nil {
		fmt.Println(red("configure failed:"), configureErr)
		return configureErr
	}
	fmt.Println(green("terminal configured and reachable"))
	return nil
}

func main() {
	zvtlog.Setup(logging.INFO)

	app := cli.NewApp()
	app.Name = "zvtctl"
	app.Usage = "drive a ZVT/Feig payment terminal from the command line"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "ip", Value: "127.0.0.1", Usage: "terminal IP address"},
		cli.IntFlag{Name: "port", Value: 0, Usage: "TCP port override (0 = protocol default 22000)"},
		cli.StringFlag{Name: "terminal-id", Value: "00000000", Usage: "configured terminal id"},
		cli.StringFlag{Name: "serial", Usage: "expected Feig device serial, checked on every (re)connect"},
		cli.Uint64Flag{Name: "password", Value: 123456, Usage: "terminal password"},
		cli.StringFlag{Name: "currency", Value: "EUR", Usage: "currency name (EUR, GBP, SEK, PLN) or raw ISO-4217 code"},
		cli.IntFlag{Name: "preauth-amount", Value: 2500, Usage: "default pre-authorization amount, in the currency's fractional unit"},
		cli.IntFlag{Name: "read-card-timeout", Value: 15, Usage: "seconds to wait for a card to be presented"},
		cli.DurationFlag{Name: "end-of-day-max-interval", Value: 12 * time.Hour, Usage: "how long to go between automatic end-of-day settlements"},
		cli.DurationFlag{Name: "timeout", Value: 90 * time.Second, Usage: "overall timeout for the command being run"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "configure",
			Usage:  "run the startup handshake: terminal id, diagnosis, initialization, end of day",
			Action: configureAction,
		},
		{
			Name:  "reconnect",
			Usage: "point the controller at a new terminal IP and re-run configure",
			Action: reconnectAction,
		},
		{
			Name:   "read-card",
			Usage:  "wait for a card to be presented and report its kind",
			Action: readCardAction,
		},
		{
			Name:  "begin-transaction",
			Usage: "reserve an amount against a token",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "token", Usage: "application-chosen transaction token"},
				cli.IntFlag{Name: "amount", Value: 2500, Usage: "amount to pre-authorize"},
			},
			Action: beginTransactionAction,
		},
		{
			Name:  "cancel-transaction",
			Usage: "reverse an open reservation in full",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "token", Usage: "transaction token to cancel"},
			},
			Action: cancelTransactionAction,
		},
		{
			Name:  "commit-transaction",
			Usage: "settle an open reservation for an amount",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "token", Usage: "transaction token to settle"},
				cli.IntFlag{Name: "amount", Usage: "amount to actually charge"},
			},
			Action: commitTransactionAction,
		},
		{
			Name:      "update-firmware",
			Usage:     "push a firmware/app payload to the terminal",
			ArgsUsage: "<payload-dir>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "force", Usage: "update even if the terminal already reports the desired version"},
			},
			Action: updateFirmwareAction,
		},
		{
			Name:  "status",
			Usage: "configure the terminal and write a diagnostic report",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "dump", Value: "/tmp/zvtctl-status.txt", Usage: "path to write the diagnostic report to (empty to skip)"},
			},
			Action: statusAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}
