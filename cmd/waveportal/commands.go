package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wave-portal/waveportal/internal/portal"
)

var (
	countCmd = &cli.Command{
		Name:   "count",
		Usage:  "Print the total number of waves",
		Action: countAction,
	}
	wavesCmd = &cli.Command{
		Name:   "waves",
		Usage:  "Print every wave in submission order",
		Action: wavesAction,
	}
	waveCmd = &cli.Command{
		Name:      "wave",
		Usage:     "Submit a wave and wait for it to be mined",
		ArgsUsage: "<message>",
		Action:    waveAction,
	}
	connectCmd = &cli.Command{
		Name:   "connect",
		Usage:  "Ask the wallet provider for account access",
		Action: connectAction,
	}
	watchCmd = &cli.Command{
		Name:   "watch",
		Usage:  "Print new waves as they arrive, until interrupted",
		Action: watchAction,
	}
)

const timeLayout = time.RFC3339

func printWave(w io.Writer, wave portal.Wave) {
	ts := "-"
	if !wave.Timestamp.IsZero() {
		ts = wave.Timestamp.Local().Format(timeLayout)
	}
	fmt.Fprintf(w, "%s  %s  %s\n", ts, wave.Sender, wave.Message)
}

func countAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	n, err := e.gateway.FetchWaveCount(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func wavesAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	waves, err := e.gateway.FetchAllWaves(c.Context)
	if err != nil {
		return err
	}
	for _, w := range waves {
		printWave(os.Stdout, w)
	}
	return nil
}

// printAll is the non-interactive default: the count followed by the list.
func printAll(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	n, err := e.gateway.FetchWaveCount(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Wave Count: %d\n", n)

	waves, err := e.gateway.FetchAllWaves(c.Context)
	if err != nil {
		return err
	}
	for _, w := range waves {
		printWave(os.Stdout, w)
	}
	return nil
}

func waveAction(c *cli.Context) error {
	message := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(message) == "" {
		return cli.Exit("usage: waveportal wave <message>", 2)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	if !e.wallet.Detect(c.Context) {
		return portal.ErrNoProvider
	}
	accounts, err := e.wallet.CurrentAccounts(c.Context)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		if _, err := e.wallet.RequestAccess(c.Context); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "Mining...")
	n, err := e.gateway.SubmitWave(c.Context, message)
	if err != nil {
		return err
	}
	fmt.Printf("Wave Count: %d\n", n)
	return nil
}

func connectAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	account, err := e.wallet.RequestAccess(c.Context)
	if err != nil {
		if errors.Is(err, portal.ErrUserRejected) {
			return cli.Exit("access request rejected", 1)
		}
		return err
	}
	fmt.Println(account)
	return nil
}

func watchAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	ch, err := e.gateway.SubscribeNewWave(c.Context)
	if err != nil {
		return err
	}
	for w := range ch {
		printWave(os.Stdout, w)
	}
	if c.Context.Err() != nil {
		return nil
	}
	return errors.New("wave stream closed")
}
