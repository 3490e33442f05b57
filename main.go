// main.go - Command line entry point for the IntuitionAPU reconstruction tool

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m\n\033[38;2;255;50;147m▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀\033[0m\n\033[38;2;255;80;147m▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███\033[0m\n\033[38;2;255;110;147m░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄\033[0m\n\033[38;2;255;140;147m░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒\033[0m\n\033[38;2;255;170;147m░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░\033[0m\n\033[38;2;255;200;147m ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░\033[0m\n\033[38;2;255;230;147m ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░\033[0m\n\033[38;2;255;255;147m ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░\033[0m")
	fmt.Println("\nRebuilds recorded audio as 2A03 APU register instructions.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionEngine")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	var (
		modeGenerate    bool
		modeReconstruct bool
		modePlay        bool
		modeExport      bool
		modeRender      bool
		configPath      string
		libraryDir      string
		workers         int
		outPath         string
		luaScript       string
		toClipboard     bool
		verbose         bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVar(&modeGenerate, "generate", false, "Generate the waveform library for the configuration")
	flagSet.BoolVar(&modeReconstruct, "reconstruct", false, "Reconstruct one or more audio files")
	flagSet.BoolVar(&modePlay, "play", false, "Play an audio file or a reconstruction (.apur)")
	flagSet.BoolVar(&modeExport, "export", false, "Print tracker macro features of a reconstruction")
	flagSet.BoolVar(&modeRender, "render", false, "Render a reconstruction to WAV")
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.StringVar(&libraryDir, "library", "", "Library directory (default "+DEFAULT_LIBRARY_DIR+")")
	flagSet.IntVar(&workers, "workers", 0, "Worker count (0 = one per CPU)")
	flagSet.StringVar(&outPath, "out", "", "Output file (render) or directory (reconstruct)")
	flagSet.StringVar(&luaScript, "lua", "", "Lua export script defining export(channel, instructions)")
	flagSet.BoolVar(&toClipboard, "clipboard", false, "Copy exported features to the clipboard")
	flagSet.BoolVar(&verbose, "v", false, "Verbose logging")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./intuition_apu -generate|-reconstruct|-play|-export|-render [-config file.yaml] [-library dir] [-workers n] [-out path] [-lua script] [-clipboard] files...")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	files := flagSet.Args()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	modeCount := 0
	for _, m := range []bool{modeGenerate, modeReconstruct, modePlay, modeExport, modeRender} {
		if m {
			modeCount++
		}
	}
	if modeCount != 1 {
		fmt.Println("Error: select exactly one mode flag: -generate, -reconstruct, -play, -export or -render")
		os.Exit(1)
	}
	if !modeGenerate && len(files) == 0 {
		fmt.Println("Error: this mode requires at least one file")
		os.Exit(1)
	}

	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if libraryDir != "" {
		cfg.LibraryDir = libraryDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case modeGenerate:
		err = runGenerate(ctx, cfg)
	case modeReconstruct:
		err = runReconstruct(ctx, cfg, files, outPath)
	case modePlay:
		err = runPlay(ctx, cfg, files[0])
	case modeExport:
		err = runExport(files[0], luaScript, toClipboard)
	case modeRender:
		err = runRender(files[0], outPath)
	}
	if err != nil {
		if errors.Is(err, ErrTaskCancelled) || errors.Is(err, context.Canceled) {
			fmt.Println("Cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openLibrary(cfg Config) (*Library, error) {
	dir, err := cfg.ResolveLibraryDir()
	if err != nil {
		return nil, err
	}
	return NewLibrary(dir), nil
}

func runGenerate(ctx context.Context, cfg Config) error {
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	key := CreateKey(cfg.LibraryConfig())
	if lib.Exists(key) {
		fmt.Printf("Library already present: %s\n", lib.Path(key))
		return nil
	}
	progress := NewTerminalProgress("library")
	task, err := NewLibraryGenerationTask(cfg, lib, progress.Handle)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		task.Cancel()
	}()
	if err := task.Wait(); err != nil {
		return err
	}
	fmt.Printf("Library written: %s\n", lib.Path(key))
	return nil
}

func runReconstruct(ctx context.Context, cfg Config, files []string, outDir string) error {
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	rec, err := NewReconstructor(cfg, lib, NewFileAudioLoader())
	if err != nil {
		if errors.Is(err, ErrLibraryMissing) {
			fmt.Println("Run with -generate first to build the library for this configuration.")
		}
		return err
	}

	if len(files) == 1 {
		result, err := rec.ReconstructFile(ctx, files[0])
		if err != nil {
			return err
		}
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(files[0])
		}
		path := ReconstructionPath(dir, files[0])
		if err := SaveReconstruction(result, path); err != nil {
			return err
		}
		fmt.Printf("%s: %d frames, %.2fs, total error %.4f -> %s\n",
			files[0], result.Frames(), result.Duration(), result.TotalError(), path)
		return nil
	}

	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	failed := 0
	progress := NewTerminalProgress("reconstruct")
	batch := NewBatchReconstruction(rec, files, outDir, BatchCallbacks{
		OnCompleted: func(r *Reconstruction) {
			slog.Info("reconstructed", "path", r.Path, "frames", r.Frames(), "error", r.TotalError())
		},
		OnError: func(path string, err error) {
			failed++
			slog.Error("reconstruction failed", "path", path, "err", err)
		},
		OnCancelled: func() {
			slog.Warn("batch cancelled")
		},
	}, progress.Handle)
	if err := batch.Start(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		batch.Cancel()
	}()
	if err := batch.Wait(); err != nil {
		return err
	}
	fmt.Printf("Reconstructed %d of %d files into %s\n", len(batch.Completed()), len(files), outDir)
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func runPlay(ctx context.Context, cfg Config, path string) error {
	var samples []float64
	rate := cfg.SampleRate
	if strings.EqualFold(filepath.Ext(path), RECONSTRUCTION_FILE_EXT) {
		rec, err := LoadReconstruction(path)
		if err != nil {
			return err
		}
		samples = rec.Approximation
		rate = rec.Config.SampleRate
	} else {
		preview := NewPreviewLoader(NewFileAudioLoader(), rate)
		select {
		case <-preview.Start(path):
		case <-ctx.Done():
			preview.Stop()
			return ctx.Err()
		}
		_, samples = preview.Status()
	}

	player, err := NewOtoPlayer(rate)
	if err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}
	defer player.Close()
	return playBuffer(ctx, player, samples, rate)
}

func playBuffer(ctx context.Context, player PreviewPlayer, samples []float64, rate int) error {
	player.Load(samples)
	player.Start()
	fmt.Printf("Playing %.2fs\n", float64(len(samples))/float64(rate))

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !player.Done() {
		select {
		case <-ctx.Done():
			player.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	// Let the device drain its last buffer.
	time.Sleep(200 * time.Millisecond)
	player.Stop()
	return nil
}

func runExport(path, luaScript string, toClipboard bool) error {
	rec, err := LoadReconstruction(path)
	if err != nil {
		return err
	}
	var exp FeatureExporter = MacroExporter{}
	if luaScript != "" {
		lua, err := NewLuaExporter(luaScript)
		if err != nil {
			return err
		}
		exp = lua
	}
	text, err := FormatFeatures(rec, exp)
	if err != nil {
		return err
	}
	fmt.Print(text)
	if toClipboard {
		if err := CopyToClipboard(text); err != nil {
			return err
		}
		fmt.Println("Copied to clipboard.")
	}
	return nil
}

func runRender(path, out string) error {
	rec, err := LoadReconstruction(path)
	if err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	}
	if err := WriteWAV(out, rec.Approximation, rec.Config.SampleRate); err != nil {
		return err
	}
	fmt.Printf("Rendered %.2fs to %s\n", rec.Duration(), out)
	return nil
}
