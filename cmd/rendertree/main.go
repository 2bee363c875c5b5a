package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/rendertree/internal/config"
	coresys "github.com/l1jgo/rendertree/internal/core/system"
	"github.com/l1jgo/rendertree/internal/data"
	"github.com/l1jgo/rendertree/internal/render"
	"github.com/l1jgo/rendertree/internal/rendertree"
	"github.com/l1jgo/rendertree/internal/scene"
	"github.com/l1jgo/rendertree/internal/scripting"
	"github.com/l1jgo/rendertree/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            rendertree  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     sprite / light tree frame driver      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Frame driver ───────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path("config/rendertree.toml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner()

	// 3. Build the scene
	printSection("Scene")
	sc := scene.New(log)
	file, err := data.LoadScene(cfg.Scene.Path)
	if err != nil {
		return err
	}
	loaded, err := file.Apply(sc)
	if err != nil {
		return fmt.Errorf("apply scene: %w", err)
	}
	entities, sprites, lights := sc.Counts()
	printStat("maps", len(loaded.Maps))
	printStat("grids", len(loaded.Grids))
	printStat("entities", entities)
	printStat("sprites", sprites)
	printStat("lights", lights)
	fmt.Println()

	// 4. Scripts
	printSection("Scripts")
	controls := render.NewControls(sc.Stores, sc.Bus)
	engine := scripting.NewEngine(sc, controls, log.Named("lua"))
	defer engine.Close()
	if err := engine.LoadDir(cfg.Scene.ScriptsDir); err != nil {
		return fmt.Errorf("scripts: %w", err)
	}
	if engine.HasFrameHook() {
		printOK("on_frame hook loaded from " + cfg.Scene.ScriptsDir)
	} else {
		printOK("no on_frame hook, scene stays static")
	}
	fmt.Println()

	// 5. Create systems and register with runner
	tree := rendertree.NewSystem(rendertree.Config{
		Margin:         cfg.Tree.Margin,
		IncludeOffGrid: cfg.Tree.IncludeOffGrid,
		Capacity:       cfg.Tree.Capacity,
	}, sc.Stores, sc.Hierarchy, sc.Maps, sc.Bus, log)
	culler := render.NewCuller(tree, sc.Maps, log)
	scripts := system.NewScriptSystem(engine, log)
	cleanup := system.NewCleanupSystem(sc.World, sc.Hierarchy, log)

	runner := coresys.NewRunner()
	runner.Register(scripts)
	runner.Register(newCamera(sc, culler, cfg.Render))
	runner.Register(tree)
	runner.Register(culler)
	runner.Register(cleanup)
	if err := runner.Init(); err != nil {
		return err
	}
	defer runner.Shutdown()

	// 6. Start frame loop
	printSection("Ready")
	printReady(fmt.Sprintf("frame loop started (tick: %s)", cfg.Frame.TickRate))
	if cfg.Frame.MaxFrames > 0 {
		printReady(fmt.Sprintf("stopping after %d frames", cfg.Frame.MaxFrames))
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Frame.TickRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runner.Tick(cfg.Frame.TickRate)
				logFrame(log, tree.Stats(), culler.LastFrame())
				if cfg.Frame.MaxFrames > 0 && runner.Frames() >= cfg.Frame.MaxFrames {
					log.Info("frame limit reached", zap.Uint64("frames", runner.Frames()))
					cancel()
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	entities, sprites, lights = sc.Counts()
	log.Info("stopped",
		zap.Uint64("frames", runner.Frames()),
		zap.Int("entities", entities),
		zap.Int("sprites", sprites),
		zap.Int("lights", lights),
		zap.Int("script_failures", scripts.Failures()),
		zap.Int("destroyed", cleanup.Destroyed()))
	return nil
}

func logFrame(log *zap.Logger, st rendertree.Stats, views []render.View) {
	if !log.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	fields := []zap.Field{
		zap.Uint64("frame", st.Frame),
		zap.Int("sprites_updated", st.SpritesUpdated),
		zap.Int("lights_updated", st.LightsUpdated),
		zap.Int("inserted", st.EntriesInserted),
		zap.Int("removed", st.EntriesRemoved),
	}
	if st.LookupFailures > 0 {
		fields = append(fields, zap.Int("lookup_failures", st.LookupFailures))
	}
	for _, v := range views {
		fields = append(fields,
			zap.Int(fmt.Sprintf("map%d_visible_sprites", v.Map), len(v.Sprites)),
			zap.Int(fmt.Sprintf("map%d_visible_lights", v.Map), len(v.Lights)))
	}
	log.Debug("frame", fields...)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
