package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/shamba/internal/behavior"
	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/satellite"
	"github.com/opensource-finance/shamba/internal/scoring"
)

var (
	identityFlag = &cli.StringFlag{
		Name:     "identity",
		Usage:    "Farmer phone number (MSISDN)",
		Required: true,
	}

	latFlag = &cli.FloatFlag{
		Name:     "lat",
		Usage:    "Farm latitude in decimal degrees",
		Required: true,
	}

	lonFlag = &cli.FloatFlag{
		Name:     "lon",
		Usage:    "Farm longitude in decimal degrees",
		Required: true,
	}

	cropFlag = &cli.StringFlag{
		Name:     "crop",
		Usage:    "Crop type, e.g. maize",
		Required: true,
	}

	acresFlag = &cli.FloatFlag{
		Name:  "acres",
		Usage: "Farm size in acres (optional, default 1)",
	}

	offlineFlag = &cli.BoolFlag{
		Name:  "offline",
		Usage: "Skip the climate API and use the fallback satellite features",
	}

	scoreCmd = &cli.Command{
		Name:   "score",
		Usage:  "Score one farmer and print the result as JSON",
		Action: cmdScore,
		Flags: []cli.Flag{
			identityFlag,
			latFlag,
			lonFlag,
			cropFlag,
			acresFlag,
			offlineFlag,
		},
	}
)

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var source satellite.Source = satellite.NewPowerClient(cfg.Satellite)
	if cmd.Bool(offlineFlag.Name) {
		source = satellite.Offline{}
	}

	engine, err := fraud.NewEngine(domain.ServiceRegion)
	if err != nil {
		return fmt.Errorf("initialize fraud engine: %w", err)
	}

	svc := scoring.NewService(
		satellite.NewProvider(source, cfg.Satellite),
		behavior.NewHashProvider(),
		engine,
	)

	req := domain.ScoreRequest{
		Identity: cmd.String(identityFlag.Name),
		Location: domain.Location{
			Latitude:  cmd.Float(latFlag.Name),
			Longitude: cmd.Float(lonFlag.Name),
		},
		CropType: cmd.String(cropFlag.Name),
	}
	if cmd.IsSet(acresFlag.Name) {
		acres := cmd.Float(acresFlag.Name)
		req.FarmSizeAcres = &acres
	}

	result, err := svc.Score(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
