package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/audio"
	"github.com/themedeck/themedeckd/internal/engine"
	"github.com/themedeck/themedeckd/internal/fetch"
	"github.com/themedeck/themedeckd/internal/library"
	"github.com/themedeck/themedeckd/internal/orchestrator"
	"github.com/themedeck/themedeckd/internal/prefs"
	"github.com/themedeck/themedeckd/internal/steam"
	"github.com/themedeck/themedeckd/internal/steamstore"
	"github.com/themedeck/themedeckd/internal/track"
	"github.com/themedeck/themedeckd/internal/ui"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	tuiFlag     = flag.Bool("tui", false, "Run with the interactive status console")

	searchFlag = flag.String("search", "", "Search for theme music and exit")
	fetchFlag  = flag.String("fetch", "", "Download audio from a YouTube URL and assign it (requires -app)")
	appFlag    = flag.Int("app", 0, "Context for -fetch: a Steam app id, -1 for ambient, -2 for store")
	listFlag   = flag.Bool("list-installed", false, "List installed Steam apps with resolved names and exit")
	statusFlag = flag.Bool("fetcher-status", false, "Report yt-dlp availability and exit")
	updateFlag = flag.Bool("update-fetcher", false, "Install or update the managed yt-dlp binary and exit")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", prefs.AppName, prefs.AppVersion, prefs.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		if configPath, err := prefs.GetConfigPath(); err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", prefs.AppName, prefs.AppVersion)
		fmt.Println(prefs.AppDescription)
		os.Exit(0)
	}

	configDir, err := configDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(configDir)

	// Utility modes run to completion and exit before any audio comes up.
	if ranUtility(configDir) {
		return
	}

	runDaemon(configDir)
}

func configDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, prefs.ConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

func setupLogging(configDir string) {
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if !*tuiFlag || utilityRequested() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}

	// The console owns the terminal, so logs go to a file.
	logPath := filepath.Join(configDir, "themedeckd.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05", NoColor: true})
	if *debugFlag {
		fmt.Printf("Debug log: %s\n", logPath)
	}
}

func utilityRequested() bool {
	return *searchFlag != "" || *fetchFlag != "" || *listFlag || *statusFlag || *updateFlag
}

// ranUtility handles the one-shot command modes. It returns true when one
// ran, whether or not it succeeded.
func ranUtility(configDir string) bool {
	if !utilityRequested() {
		return false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fetcher := fetch.New(configDir)

	switch {
	case *statusFlag:
		printFetcherStatus(fetcher.Status(ctx))
	case *updateFlag:
		status, err := fetcher.Update(ctx)
		if err != nil {
			fail("update failed: %v", err)
		}
		printFetcherStatus(status)
	case *searchFlag != "":
		runSearch(ctx, fetcher, *searchFlag)
	case *fetchFlag != "":
		runFetch(ctx, fetcher, *fetchFlag, *appFlag)
	case *listFlag:
		listInstalled()
	}
	return true
}

func printFetcherStatus(status fetch.Status) {
	if !status.Installed {
		fmt.Println("yt-dlp: not installed (run with -update-fetcher)")
		return
	}
	fmt.Printf("yt-dlp: %s (%s, %s)\n", status.Version, status.Source, status.Path)
}

func runSearch(ctx context.Context, fetcher *fetch.Fetcher, query string) {
	results, err := fetcher.Search(ctx, query, 10)
	if err != nil {
		if fetch.IsNotInstalled(err) {
			fail("yt-dlp is not installed; run with -update-fetcher first")
		}
		fail("search failed: %v", err)
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, r := range results {
		fmt.Printf("%4dm%02ds  %-50.50s  %s\n", r.Duration/60, r.Duration%60, r.Title, r.URL)
	}
}

func runFetch(ctx context.Context, fetcher *fetch.Fetcher, rawURL string, app int) {
	ctxID := track.ContextID(app)
	if !ctxID.IsGame() && ctxID != track.AmbientContext && ctxID != track.StoreContext {
		fail("-fetch requires -app: a Steam app id, -1 for ambient or -2 for store")
	}

	url, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		fail("bad URL: %v", err)
	}

	appID := 0
	if ctxID.IsGame() {
		appID = int(ctxID)
	}
	path, err := fetcher.Download(ctx, appID, url)
	if err != nil {
		if fetch.IsNotInstalled(err) {
			fail("yt-dlp is not installed; run with -update-fetcher first")
		}
		fail("download failed: %v", err)
	}

	libPath, err := library.DefaultPath()
	if err != nil {
		fail("%v", err)
	}
	lib, err := library.New(libPath)
	if err != nil {
		fail("failed to open track registry: %v", err)
	}
	if _, err := lib.SetTrack(ctxID, path, ""); err != nil {
		fail("failed to assign track: %v", err)
	}
	fmt.Printf("Assigned %s to %s\n", path, ctxID)
}

func listInstalled() {
	appIDs := steam.InstalledAppIDs(steam.DefaultUserdataDirs()...)
	if len(appIDs) == 0 {
		fmt.Println("No installed Steam apps found.")
		return
	}
	names := steamstore.NewClient().ResolveNames(appIDs)
	for _, id := range appIDs {
		name := names[id]
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("%8d  %s\n", id, name)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func runDaemon(configDir string) {
	store, err := prefs.NewStore("")
	if err != nil {
		fail("failed to load preferences: %v", err)
	}

	libPath, err := library.DefaultPath()
	if err != nil {
		fail("%v", err)
	}
	lib, err := library.New(libPath)
	if err != nil {
		fail("failed to open track registry: %v", err)
	}

	cache := audio.NewCache()
	eng := engine.New(engine.NewSpeakerSink(), cache)

	host := steam.NewLocalHost()
	focus := steam.NewFocusSignal(host)
	running := steam.NewRunningSignal(host, focus, func() bool {
		return store.Get().LaunchStopMode == prefs.StopOnLaunch
	})
	display := steam.NewDisplayModeSignal(host)
	storeView := steam.NewStoreViewSignal(steam.RouteStoreProbe(host))

	poller := steam.NewPoller()
	poller.Add("focus", focus, time.Second)
	poller.Add("running", running, time.Second)
	poller.Add("display", display, 2*time.Second)
	poller.Add("store", storeView, time.Second)

	orch := orchestrator.New(orchestrator.Config{
		Prefs:   store,
		Library: lib,
		Engine:  eng,
		Cache:   cache,
		Focus:   focus,
		Running: running,
		Display: display,
		Store:   storeView,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	orch.Start(ctx)
	log.Info().Str("config", configDir).Msgf("Starting %s v%s", prefs.AppName, prefs.AppVersion)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if !*tuiFlag {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		orch.Stop()
		poller.Stop()
		return
	}

	console := ui.New(orch, lib, store)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		console.Shutdown()
	}()

	uiErr := console.Run()

	orch.Stop()
	poller.Stop()

	if uiErr != nil {
		fail("console failed: %v", uiErr)
	}
	log.Info().Msgf("%s stopped", prefs.AppName)
}
