// Command audioserver runs the server side of the UDP audio path: the
// signaling endpoint that manages sessions and the UDP receiver that routes
// audio packets to them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/config"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/metrics"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/session"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/signaling"
	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/transport"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "audioserver",
		Short: "Low-latency UDP audio receiver with websocket signaling",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	setupLogging(cfg.Logging)
	log := logrus.WithField("component", "audioserver")

	registry := session.NewRegistry()

	receiver := transport.NewReceiver(transport.ReceiverConfig{
		BindAddress: cfg.UDP.BindAddress,
		Port:        cfg.UDP.Port,
		ReadBuffer:  cfg.UDP.ReadBuffer,
	}, registry)
	if err := receiver.Start(); err != nil {
		return fmt.Errorf("start UDP receiver: %w", err)
	}
	defer receiver.Stop()

	sigServer := signaling.NewServer(signaling.ServerConfig{
		UDPHost:       cfg.UDP.AdvertiseHost,
		UDPPort:       cfg.UDP.Port,
		CryptoEnabled: cfg.UDP.CryptoEnabled,
	}, registry)
	sigServer.OnSession = consumeAudio

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Signaling.Path, sigServer.HandleWebSocket)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Signaling.Address, cfg.Signaling.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("signaling endpoint failed")
		}
	}()
	log.WithFields(logrus.Fields{
		"signaling": httpSrv.Addr + cfg.Signaling.Path,
		"udp":       fmt.Sprintf("%s:%d", cfg.UDP.BindAddress, cfg.UDP.Port),
		"crypto":    cfg.UDP.CryptoEnabled,
	}).Info("audioserver started")

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Address, cfg.Metrics.Port, cfg.Metrics.Path, receiver)
		metricsSrv.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("signaling shutdown incomplete")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(); err != nil {
			log.WithError(err).Warn("metrics shutdown failed")
		}
	}
	return nil
}

// consumeAudio drains a session's audio stream. Downstream processing hooks
// in here; without one, frames are counted so the path stays observable.
func consumeAudio(sess *session.Session) {
	go func() {
		log := logrus.WithFields(logrus.Fields{
			"component": "audio-consumer",
			"userId":    sess.UserID,
		})

		var frames, bytes uint64
		for {
			select {
			case frame, ok := <-sess.Audio():
				if !ok {
					log.WithFields(logrus.Fields{
						"frames": frames,
						"bytes":  bytes,
					}).Info("audio stream ended")
					return
				}
				frames++
				bytes += uint64(len(frame.PCM))
				if frames%1000 == 0 {
					log.WithFields(logrus.Fields{
						"frames": frames,
						"bytes":  bytes,
						"seq":    frame.Seq,
					}).Debug("audio stream stats")
				}
			case <-sess.Done():
				log.WithFields(logrus.Fields{
					"frames": frames,
					"bytes":  bytes,
				}).Info("audio stream ended")
				return
			}
		}
	}()
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
