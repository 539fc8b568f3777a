// Command btcored is a small CLI entry point that constructs the
// advertising and power managers against a stub in-process transport, for
// manual exercising without a real controller. Grounded on rigado-ble's
// examples/basic/advertiser/main.go pattern of a flag-driven demo host,
// generalized from the standard library flag package to urfave/cli since
// this entry point recognizes several independent config overrides (§6)
// rather than the teacher example's three ad-hoc flags.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/addrpolicy"
	"github.com/rigado/btcore/advertising"
	"github.com/rigado/btcore/config"
	"github.com/rigado/btcore/hci"
	"github.com/rigado/btcore/pm"
	"github.com/rigado/btcore/storage"
)

// loggingSender logs every outgoing HCI command instead of writing it to
// a real transport, which is out of scope (§1).
type loggingSender struct {
	logger btcore.Logger
}

func (s loggingSender) Send(b []byte) error {
	s.logger.Debugf("hci: tx %x", b)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "btcored"
	app.Usage = "run the BLE advertising and power managers against a stub transport"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "tx-path-loss-comp-db", Usage: "bluetooth.hardware.radio.le_tx_path_loss_comp_db"},
		cli.StringFlag{Name: "storage-file", Value: "btcored.json", Usage: "persistent key/value storage file"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "trace|debug|info|warn|error"},
		cli.BoolFlag{Name: "nrpa-non-connectable-adv"},
		cli.BoolFlag{Name: "divide-long-single-gap-data"},
		cli.BoolFlag{Name: "ble-check-data-length-on-legacy-advertising"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return errors.Wrap(err, "btcored: invalid log level")
	}
	logrus.SetLevel(level)
	logger := btcore.GetLogger()

	cfg, err := config.Apply(
		config.WithLeTxPathLossCompDb(c.Int("tx-path-loss-comp-db")),
		config.WithNRPANonConnectableAdv(c.Bool("nrpa-non-connectable-adv")),
		config.WithDivideLongSingleGapData(c.Bool("divide-long-single-gap-data")),
		config.WithBLECheckDataLengthOnLegacyAdvertising(c.Bool("ble-check-data-length-on-legacy-advertising")),
	)
	if err != nil {
		return errors.Wrap(err, "btcored: config")
	}

	store := storage.New(c.String("storage-file"))
	if _, err := store.GetEncrData(); err != nil && err != storage.ErrNotFound {
		return errors.Wrap(err, "btcored: storage")
	}

	dispatcher := hci.NewDispatcher(loggingSender{logger: logger})
	identity, err := btcore.NewAddress("00:00:00:00:00:00", btcore.AddressTypePublic)
	if err != nil {
		return errors.Wrap(err, "btcored: identity address")
	}
	addrMod := addrpolicy.New(identity)

	advMgr := advertising.NewManager(btcore.ApiExtended, 8, dispatcher, addrMod, advertising.NopCallbacks{})
	advMgr.SetTxPathLossCompDb(cfg.LeTxPathLossCompDb)
	advMgr.SetNRPANonConnectableAdv(cfg.NRPANonConnectableAdv)
	advMgr.SetDivideLongSingleGapData(cfg.DivideLongSingleGapData)
	advMgr.SetBLECheckDataLengthOnLegacyAdvertising(cfg.BLECheckDataLengthOnLegacyAdvertising)
	defer advMgr.Stop()

	pmMgr := pm.NewManager(dispatcher, 8)
	pmMgr.SetSniffParams(pm.SniffParamsFromLists(
		cfg.Sniff.MaxIntervals, cfg.Sniff.MinIntervals, cfg.Sniff.Attempts, cfg.Sniff.Timeouts,
		pm.DefaultSniffParams,
	))
	defer pmMgr.Stop()

	logger.Infof("btcored: running (tx_path_loss_comp_db=%d, nrpa_non_connectable_adv=%v)",
		cfg.LeTxPathLossCompDb, cfg.NRPANonConnectableAdv)
	fmt.Fprintln(c.App.Writer, "btcored: managers constructed, stub transport only; press Ctrl-C to exit")
	select {}
}
