package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/callerbot/core/config"
	coretelegram "github.com/m3rciful/callerbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	opts coretelegram.RunOptions
	err  error
}

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CALLERBOT_CONFIG", "")
	if _, err := ResolveConfigPath(Options{ConfigEnvVar: "CALLERBOT_CONFIG"}); err == nil {
		t.Fatal("expected error without any source")
	}
	got, _ := ResolveConfigPath(Options{ConfigEnvVar: "CALLERBOT_CONFIG", DefaultConfigPath: "config.yaml"})
	if got != "config.yaml" {
		t.Fatalf("default = %q", got)
	}
	t.Setenv("CALLERBOT_CONFIG", "/etc/callerbot.yaml")
	got, _ = ResolveConfigPath(Options{ConfigEnvVar: "CALLERBOT_CONFIG", DefaultConfigPath: "config.yaml"})
	if got != "/etc/callerbot.yaml" {
		t.Fatalf("env = %q", got)
	}
	got, _ = ResolveConfigPath(Options{ConfigPath: "flag.yaml", ConfigEnvVar: "CALLERBOT_CONFIG"})
	if got != "flag.yaml" {
		t.Fatalf("flag = %q", got)
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var (
		loadedPath string
		calls      []string
	)
	cfg := &coreconfig.Config{}
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedPath = path
			return carrier{cfg: cfg}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				Config: cfg,
				OnStart: func(context.Context, coretelegram.Runtime) error {
					calls = append(calls, "start")
					return nil
				},
				OnStop: func(context.Context, coretelegram.Runtime) error {
					calls = append(calls, "stop")
					return nil
				},
			}}, nil
		},
		ShutdownLogger: func() error { calls = append(calls, "logger"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if opts.Config != cfg {
				t.Fatal("run options not forwarded")
			}
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loadedPath != "config.yaml" {
		t.Fatalf("path = %q", loadedPath)
	}
	want := []string{"start", "stop", "logger"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	cfg := &coreconfig.Config{}
	load := func(string) (ConfigCarrier, error) { return carrier{cfg: cfg}, nil }

	if err := Run(Options{ConfigPath: "x"}); err == nil {
		t.Fatal("expected missing LoadConfig error")
	}
	err := Run(Options{
		ConfigPath: "x",
		LoadConfig: func(string) (ConfigCarrier, error) { return nil, errors.New("bad yaml") },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return app{}, nil },
	})
	if err == nil {
		t.Fatal("expected load error")
	}
	err = Run(Options{
		ConfigPath:     "x",
		LoadConfig:     load,
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app{err: errors.New("no token")}, nil },
		ShutdownLogger: func() error { return nil },
	})
	if err == nil {
		t.Fatal("expected options error")
	}
	err = Run(Options{
		ConfigPath: "x",
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return app{}, nil },
	})
	if err == nil {
		t.Fatal("expected missing core config error")
	}
}
