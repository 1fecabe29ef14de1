package main

import (
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/registry"
	"github.com/brettbedarf/memfs/requests"
	"github.com/brettbedarf/memfs/server"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		verbose    int
		nodesDef   string
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&nodesDef, "nodes", "", "Path to a YAML or JSON tree file to seed the filesystem with")
	flag.StringVar(&nodesDef, "n", "", "--nodes (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.Parse()

	verboseSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "verbose" || f.Name == "v" {
			verboseSet = true
		}
	})

	// Initialize logger
	util.InitializeLogger(config.VerboseToLogLevel(verbose))
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("config", configPath).Str("nodes", nodesDef).Str("mnt", mnt).Msg("MemFS server initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	// Load config; an explicit -v wins over the file
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
	}
	if configPath == "" || verboseSet {
		cfg.Merge(&config.ConfigOverride{LogLvl: &verbose})
	}
	util.InitializeLogger(cfg.LogLvl)

	// Init the container
	c, scheme, err := registry.Default.Create(cfg.Name, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create container")
	}
	defer registry.Default.Unregister(scheme)

	// Seed nodes
	if nodesDef != "" {
		tree, err := requests.LoadFile(nodesDef, cfg)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to load nodes file")
		}
		if err := requests.Seed(c, tree); err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to seed filesystem")
		}
		logger.Info().Int("nodes", len(tree.Requests)).Msg("Added new nodes to filesystem")
	} else {
		logger.Warn().Msg("No nodes file provided; starting empty")
	}

	// Serve
	fs := server.NewWithContainer(cfg, c)
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Str("scheme", scheme).Msg("Filesystem mounted successfully")

	// Wait for termination signal or an external unmount
	unmounted := make(chan struct{})
	go func() {
		fs.Wait()
		close(unmounted)
	}()
	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")
	case <-unmounted:
		logger.Info().Msg("Filesystem was unmounted externally")
		return
	}

	// Unmount the filesystem
	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
}
