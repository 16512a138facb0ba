// Command audioprobe is a diagnostic client for the UDP audio path. It
// connects to the signaling endpoint, runs the reachability probe, then
// streams a sine wave as PCM16 so the receive path can be verified end to
// end without glasses hardware.
package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/crypto"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/probe"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/signaling"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/timer"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/transport"
)

var opts struct {
	url        string
	userID     string
	duration   time.Duration
	frequency  float64
	sampleRate int
	frameMs    int
	verbose    bool
}

func main() {
	root := &cobra.Command{
		Use:   "audioprobe",
		Short: "Probe UDP reachability and stream test audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&opts.url, "url", "ws://127.0.0.1:8080/glasses-ws", "signaling endpoint")
	root.Flags().StringVar(&opts.userID, "user", "probe@example.com", "user identifier")
	root.Flags().DurationVar(&opts.duration, "duration", 10*time.Second, "how long to stream")
	root.Flags().Float64Var(&opts.frequency, "freq", 440, "sine frequency in Hz")
	root.Flags().IntVar(&opts.sampleRate, "rate", 16000, "sample rate in Hz")
	root.Flags().IntVar(&opts.frameMs, "frame", 20, "frame size in milliseconds")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "audioprobe")

	sender := transport.NewSender()
	defer sender.Close()

	monitor := signaling.NewMonitor(signaling.MonitorConfig{
		URL: opts.url + "?userId=" + opts.userID,
	}, nil, nil)
	defer monitor.Disconnect()

	prober := probe.New(probe.Config{}, monitor, sender, timer.Background{})

	monitor.OnMessage(signaling.TypeConnectionAck, func(raw json.RawMessage) {
		var ack signaling.ConnectionAck
		if err := json.Unmarshal(raw, &ack); err != nil {
			log.WithError(err).Warn("malformed connection_ack")
			return
		}
		if ack.SessionKey != "" {
			keyBytes, err := base64.StdEncoding.DecodeString(ack.SessionKey)
			if err == nil {
				if key, err := crypto.KeyFromBytes(keyBytes); err == nil {
					sender.EnableCrypto(key)
					log.Info("session encryption enabled")
				}
				crypto.ZeroBytes(keyBytes)
			}
		}
		log.WithFields(logrus.Fields{
			"udpHost": ack.UDPHost,
			"udpPort": ack.UDPPort,
		}).Info("session established")
		prober.Begin(opts.userID, ack.UDPHost, ack.UDPPort)
	})
	monitor.OnMessage(signaling.TypeUDPPingAck, func(json.RawMessage) {
		prober.HandlePingAck()
	})
	monitor.OnStatus(func(status signaling.Status) {
		if status == signaling.StatusDisconnected || status == signaling.StatusError {
			prober.HandleDisconnect()
		}
	})

	if err := monitor.Connect(); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	if err := waitConfirmed(prober, 10*time.Second); err != nil {
		return err
	}
	log.Info("UDP path confirmed, streaming")

	packets, err := streamSine(sender)
	if err != nil {
		return err
	}
	log.WithField("packets", packets).Info("stream finished")
	return nil
}

func waitConfirmed(prober *probe.Prober, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if prober.State() == probe.StateConfirmed {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("UDP path not confirmed within %s (state %s)", timeout, prober.State())
}

// streamSine sends frames on a real-time cadence so the server sees the
// packet rate a live device would produce.
func streamSine(sender *transport.Sender) (int, error) {
	samplesPerFrame := opts.sampleRate * opts.frameMs / 1000
	frame := make([]byte, samplesPerFrame*2)

	ticker := time.NewTicker(time.Duration(opts.frameMs) * time.Millisecond)
	defer ticker.Stop()
	stop := time.After(opts.duration)

	var phase float64
	step := 2 * math.Pi * opts.frequency / float64(opts.sampleRate)

	packets := 0
	for {
		select {
		case <-stop:
			return packets, nil
		case <-ticker.C:
			for i := 0; i < samplesPerFrame; i++ {
				sample := int16(8000 * math.Sin(phase))
				binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
				phase += step
			}
			n, err := sender.SendAudio(frame)
			if err != nil {
				return packets, fmt.Errorf("send audio: %w", err)
			}
			packets += n
		}
	}
}
