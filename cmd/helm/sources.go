package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/helm/internal/canbus"
	"github.com/banshee-data/helm/internal/config"
	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/serialmux"
)

// sourceFiles carries the replay inputs given on the command line.
type sourceFiles struct {
	Pcap    string
	Candump string
	Speed   float64
}

// openSLCANMux opens the adapter's serial port. Tests replace it.
var openSLCANMux = func(opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
	return serialmux.NewRealSerialMux(opts.Path, opts, serialmux.Options{
		Name:       "slcan",
		Terminator: "\r",
		Split:      serialmux.ScanCRLF,
	})
}

// newFrameSource builds the configured CAN source. The returned cleanup
// func is never nil. A nil source means CAN input is disabled.
func newFrameSource(cfg *config.HelmConfig, files sourceFiles) (canbus.Source, func(), error) {
	noop := func() {}
	iface := cfg.GetCANInterface()

	switch cfg.GetCANSource() {
	case config.SourceNone:
		return nil, noop, nil

	case config.SourceSocketCAN:
		return canbus.NewSocketCAN(iface), noop, nil

	case config.SourcePcap:
		if files.Pcap == "" {
			return nil, noop, errors.New("--pcap is required for the pcap source")
		}
		if _, err := os.Stat(files.Pcap); err != nil {
			return nil, noop, fmt.Errorf("pcap capture: %w", err)
		}
		return &canbus.PcapReplay{Path: files.Pcap, Interface: iface, Speed: files.Speed}, noop, nil

	case config.SourceCandump:
		if files.Candump == "" {
			return nil, noop, errors.New("--candump is required for the candump source")
		}
		f, err := os.Open(files.Candump)
		if err != nil {
			return nil, noop, fmt.Errorf("candump log: %w", err)
		}
		closeFile := func() {
			if err := f.Close(); err != nil {
				log.Printf("failed to close %s: %v", files.Candump, err)
			}
		}
		return &canbus.CandumpReplay{Reader: f, Interface: iface, Speed: files.Speed}, closeFile, nil

	case config.SourceSLCAN:
		opts := cfg.GetSLCANPort()
		if !opts.Enabled() {
			return nil, noop, errors.New("slcan_port.path is required for the slcan source")
		}
		opts, err := opts.Normalize()
		if err != nil {
			return nil, noop, fmt.Errorf("invalid slcan port options: %w", err)
		}
		mux, err := openSLCANMux(opts)
		if err != nil {
			return nil, noop, err
		}
		src := &canbus.SLCAN{Interface: iface, Mux: mux, Bitrate: cfg.GetCANBitrate()}
		if err := src.Open(); err != nil {
			mux.Close()
			return nil, noop, err
		}
		return &slcanSource{SLCAN: src, mux: mux}, func() {
			if err := src.Close(); err != nil {
				log.Printf("failed to close slcan channel: %v", err)
			}
			mux.Close()
		}, nil
	}
	return nil, noop, fmt.Errorf("unknown CAN source %q", cfg.GetCANSource())
}

// slcanSource runs the adapter's serial monitor for as long as frames are
// being read.
type slcanSource struct {
	*canbus.SLCAN
	mux serialmux.SerialMuxInterface
}

func (s *slcanSource) Run(ctx context.Context, out chan<- j1939.Frame) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("slcan monitor terminated with error: %v", err)
		}
	}()
	return s.SLCAN.Run(ctx, out)
}
