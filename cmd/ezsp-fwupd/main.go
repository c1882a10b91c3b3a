// Command ezsp-fwupd is an unattended firmware updater for a Zigbee
// network co-processor attached over a serial port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guiperry/ezsp-fwupd/internal/config"
	"github.com/guiperry/ezsp-fwupd/internal/direction"
	"github.com/guiperry/ezsp-fwupd/internal/fwupd"
	"github.com/guiperry/ezsp-fwupd/internal/manifest"
	"github.com/guiperry/ezsp-fwupd/internal/ncp"
	"github.com/guiperry/ezsp-fwupd/internal/otafile"
	"github.com/guiperry/ezsp-fwupd/internal/transport"
)

const versionQueryRetryInterval = 500 * time.Millisecond

type options struct {
	manifestPath        string
	timeoutMS           int
	rebootGraceMS       int
	callbackChannelSize int
	responseChannelSize int
	protocolVersion     int
	maxRetries          int
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ezsp-fwupd TTY",
		Short: "Unattended firmware updater for a Zigbee NCP attached over a serial port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.StringVarP(&opts.manifestPath, "manifest", "m", "/etc/ezsp-firmware-update.json", "manifest location")
	flags.IntVarP(&opts.timeoutMS, "timeout", "t", 1000, "per-operation serial timeout in milliseconds")
	flags.IntVar(&opts.rebootGraceMS, "reboot-grace-time", 4000, "post-reset wait in milliseconds")
	flags.IntVar(&opts.callbackChannelSize, "callback-channel-size", 8, "capacity of the discard queue")
	flags.IntVar(&opts.responseChannelSize, "response-channel-size", 8, "capacity of the session response queue")
	flags.IntVar(&opts.protocolVersion, "protocol-version", 8, "application-protocol version negotiated with the device")
	flags.IntVar(&opts.maxRetries, "max-retries", 5, "retries for the version query")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, tty string, opts *options) error {
	entry, err := manifest.Load(opts.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	if entry == nil {
		logrus.Info("no active firmware declared in manifest, nothing to do")
		return nil
	}

	ota, err := loadOTAFile(entry.ImagePath)
	if err != nil {
		return fmt.Errorf("loading OTA file: %w", err)
	}

	timeout := time.Duration(opts.timeoutMS) * time.Millisecond
	t, err := transport.Open(tty, config.BaudRate, timeout)
	if err != nil {
		return fmt.Errorf("opening serial port %s: %w", tty, err)
	}
	defer t.Close()

	ncpParams := ncp.Params{
		CallbackChannelSize: opts.callbackChannelSize,
		ResponseChannelSize: opts.responseChannelSize,
		ProtocolVersion:     uint8(opts.protocolVersion),
	}

	current := queryVersion(ctx, ncp.NewClient(t, ncpParams), opts.maxRetries)

	dir, needsAction := direction.FromVersions(current, entry.DeclaredVersion)
	if !needsAction {
		logrus.Infof("device already reports the declared version %s, nothing to do", entry.DeclaredVersion)
		return nil
	}
	logrus.Infof("%s device from %s to %s", dir.PresentParticiple(), versionString(current), entry.DeclaredVersion)

	t, err = fwupd.Run(ctx, t, fwupd.Options{
		Payload:             ota.Payload,
		PerOpTimeout:        timeout,
		CallbackChannelSize: opts.callbackChannelSize,
		Progress:            logProgress,
	})
	if err != nil {
		return fmt.Errorf("flashing: %w", err)
	}

	sleepUnlessCanceled(ctx, time.Duration(opts.rebootGraceMS)*time.Millisecond)

	newVersion := queryVersion(ctx, ncp.NewClient(t, ncpParams), opts.maxRetries)
	if newVersion == nil || !newVersion.Equal(entry.DeclaredVersion) {
		return fmt.Errorf("post-flash validation failed: expected %s, got %s", entry.DeclaredVersion, versionString(newVersion))
	}

	logrus.Infof("flashed successfully, device now reports %s", newVersion)
	return nil
}

func loadOTAFile(path string) (*otafile.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	file, err := otafile.Decode(f)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

// queryVersion retries the version query up to maxRetries times; if
// every attempt fails the current version is treated as absent rather
// than aborting the run, per §4.7 step 4.
func queryVersion(ctx context.Context, provider ncp.VersionProvider, maxRetries int) *semver.Version {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(versionQueryRetryInterval), uint64(maxRetries)),
		ctx,
	)

	var version *semver.Version
	err := backoff.Retry(func() error {
		v, err := provider.GetVersion(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	}, policy)
	if err != nil {
		logrus.Warnf("version query did not succeed after retries, treating current version as unknown: %v", err)
		return nil
	}
	return version
}

func logProgress(sent, total int) {
	if total == 0 {
		return
	}
	logrus.Infof("transmitting firmware: %d/%d bytes (%.1f%%)", sent, total, float64(sent)/float64(total)*100)
}

func sleepUnlessCanceled(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func versionString(v *semver.Version) string {
	if v == nil {
		return "unknown"
	}
	return v.String()
}
