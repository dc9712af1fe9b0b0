// lodtool generates LOD chains and meshlet hierarchies for glTF assets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/assets"
	"github.com/Faultbox/midgard-lod/internal/config"
	"github.com/Faultbox/midgard-lod/internal/logger"
)

type app struct {
	cfg    *config.Config
	assets *assets.Manager
	log    *zap.Logger
}

func main() {
	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	a := &app{cfg: cfg, log: logger.Named("lodtool")}
	var opts []assets.Option
	if !cfg.Assets.Cache {
		opts = append(opts, assets.WithoutCache())
	}
	a.assets = assets.NewManager(opts...)
	defer a.assets.Close()
	for _, root := range cfg.Assets.SearchRoots {
		if err := a.assets.AddRoot(root); err != nil {
			a.log.Warn("skipping search root", zap.String("root", root), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	switch command {
	case "analyze":
		err = a.cmdAnalyze(ctx, rest)
	case "process":
		err = a.cmdProcess(ctx, rest)
	case "meshlets":
		err = a.cmdMeshlets(ctx, rest)
	case "cull":
		err = a.cmdCull(ctx, rest)
	case "export":
		err = a.cmdExport(ctx, rest)
	case "watch":
		err = a.cmdWatch(ctx, rest)
	case "demo":
		err = a.cmdDemo(ctx, rest)
	case "config":
		err = a.cmdConfig(rest)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lodtool - LOD and meshlet generator

Usage:
  lodtool [flags] <command> [options]

Commands:
  analyze <file>              Show mesh statistics and complexity
  process <file>              Generate the LOD chain
  meshlets [-bounds out.glb] <file>
                              Build the meshlet hierarchy
  cull [-distance d] [-yaw deg] [-pitch deg] <file>
                              Cull the meshlet hierarchy for a camera
  export <file> <out.glb>     Write every LOD level to a GLB file
  watch <dir>                 Reprocess assets whenever they change
  demo                        Run the whole chain on a generated sphere
  config init [-force] [-current] [-o path]
                              Write a config file (default: user config dir)
  config show                 Print the effective configuration
  config path                 Print the user config file location

Flags:
  -config <path>    Config file (default: ./lodtool.yaml, then user config dir)
  -debug            Enable debug logging
  -preset <name>    LOD preset (default, mobile)
  -max-verts <n>    Maximum vertices per meshlet
  -max-tris <n>     Maximum triangles per meshlet
  -lod-levels <n>   Meshlet hierarchy levels

Examples:
  lodtool analyze models/rock.glb
  lodtool -preset mobile process models/rock.glb
  lodtool -max-verts 128 -max-tris 256 meshlets models/rock.glb
  lodtool meshlets -bounds rock_bounds.glb models/rock.glb
  lodtool cull -distance 40 -yaw 45 models/rock.glb
  lodtool watch models`)
}
