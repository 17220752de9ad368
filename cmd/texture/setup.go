package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/texture.report/internal/config"
	"github.com/banshee-data/texture.report/internal/model"
	"github.com/banshee-data/texture.report/internal/serialmux"
	"github.com/banshee-data/texture.report/internal/sensor"
	"github.com/banshee-data/texture.report/internal/skin"
	"github.com/banshee-data/texture.report/internal/timeutil"
)

// engine is everything loaded once at startup.
type engine struct {
	settings  *config.Settings
	mapping   *skin.Mapping
	model     *model.Sequential
	modelPath string
}

// resolveModelPath picks the -model flag, then model_path from the config
// (relative to the config file), then the built-in default (relative to the
// working directory).
func resolveModelPath(configPath string, settings *config.Settings, override string) string {
	if override != "" {
		return override
	}
	if settings.ModelPath == nil {
		return config.DefaultModelPath
	}
	p := *settings.ModelPath
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func loadEngine(configPath, modelOverride string) (*engine, error) {
	props, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(props)
	if err != nil {
		return nil, err
	}

	layout := skin.Layout{
		Rows:   settings.GetGridRows(),
		Cols:   settings.GetGridCols(),
		Taxels: settings.GetTaxelCount(),
	}
	mapping, err := skin.LoadMapping(props, config.MappingKey, layout)
	if err != nil {
		return nil, err
	}

	path := resolveModelPath(configPath, settings, modelOverride)
	m, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	if want := (model.Shape{Rows: layout.Rows, Cols: layout.Cols, Channels: 1}); m.InputShape() != want {
		return nil, fmt.Errorf("model %s expects input %s, grid is %s", path, m.InputShape(), want)
	}
	if m.OutputShape().Size() != 1 {
		return nil, fmt.Errorf("model %s: %w", path, model.ErrNotSingleOutput)
	}

	return &engine{settings: settings, mapping: mapping, model: m, modelPath: path}, nil
}

type sourceOptions struct {
	Kind         string
	FixturePath  string
	SerialPort   string
	Baud         int
	UDPListen    string
	PCAPPath     string
	PCAPPort     int
	PCAPRealtime bool
}

// task is a background routine that feeds a streaming source.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// openedSource is a sample source plus the routines that keep it fed.
type openedSource struct {
	sensor.Source
	tasks  []task
	serial serialmux.SerialMuxInterface
}

var errUnknownSource = errors.New("unknown source")

func openSource(opts sourceOptions, taxels int) (*openedSource, error) {
	switch opts.Kind {
	case "", "static":
		if taxels != len(sensor.PalmSample) {
			return nil, fmt.Errorf("static palm sample has %d taxels, configuration expects %d", len(sensor.PalmSample), taxels)
		}
		return &openedSource{Source: sensor.NewStatic(nil)}, nil

	case "fixture":
		f, err := sensor.LoadFixture(opts.FixturePath, taxels)
		if err != nil {
			return nil, err
		}
		return &openedSource{Source: f}, nil

	case "serial":
		mux, err := serialmux.NewRealSerialMux(opts.SerialPort, serialmux.PortOptions{BaudRate: opts.Baud})
		if err != nil {
			return nil, err
		}
		s := sensor.NewSerial(mux, taxels)
		return &openedSource{
			Source: s,
			serial: mux,
			tasks: []task{
				{name: "serial monitor", run: mux.Monitor},
				{name: "serial source", run: s.Run},
			},
		}, nil

	case "udp":
		u, err := sensor.ListenUDP(opts.UDPListen, taxels)
		if err != nil {
			return nil, err
		}
		return &openedSource{Source: u, tasks: []task{{name: "udp source", run: u.Run}}}, nil

	case "pcap":
		if opts.PCAPPath == "" {
			return nil, fmt.Errorf("-pcap is required with -source=pcap")
		}
		if opts.PCAPPort <= 0 || opts.PCAPPort > 65535 {
			return nil, fmt.Errorf("invalid -pcap-port %d", opts.PCAPPort)
		}
		p := &sensor.PCAP{
			Path:     opts.PCAPPath,
			Port:     uint16(opts.PCAPPort),
			Taxels:   taxels,
			Realtime: opts.PCAPRealtime,
			Clock:    timeutil.RealClock{},
		}
		return &openedSource{Source: p, tasks: []task{{name: "pcap replay", run: p.Run}}}, nil
	}
	return nil, fmt.Errorf("%w %q: expected static, fixture, serial, udp or pcap", errUnknownSource, opts.Kind)
}

// cycleInterval prefers the -interval flag over period_ms.
func cycleInterval(flagValue time.Duration, settings *config.Settings) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return settings.GetPeriod()
}
