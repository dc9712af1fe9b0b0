package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/config"
)

// cmdConfig handles "config init", "config show" and "config path".
func (a *app) cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lodtool config <init|show|path>")
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("config init", flag.ContinueOnError)
		out := fs.String("o", "", "Write to this path instead of the user config directory")
		force := fs.Bool("force", false, "Replace an existing file")
		current := fs.Bool("current", false, "Write the effective settings (file and flags) instead of defaults")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		cfg := config.Default()
		if *current {
			cfg = a.cfg
		}

		path := *out
		var err error
		if path == "" {
			path, err = cfg.Save(*force)
		} else {
			err = cfg.SaveTo(path, *force)
		}
		if err != nil {
			return err
		}
		a.log.Info("wrote config", zap.String("path", path))
		fmt.Println(path)
		return nil

	case "show":
		data, err := a.cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err

	case "path":
		fmt.Println(config.DefaultPath())
		return nil

	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}
}
