package app

import (
	"fmt"
	"time"

	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/library/arr"
	"github.com/zulandar/marquee/internal/parser"
	"github.com/zulandar/marquee/internal/services"
)

// BuildServices creates the hot-swappable service set from cfg: library
// clients behind a lookup cache, the intent parser and the add defaults.
func BuildServices(cfg *config.Config) (*services.Set, error) {
	set := &services.Set{
		MaxResults: cfg.Requests.MaxResults,
		Defaults: services.AddDefaults{
			Movie: library.AddOptions{
				QualityProfileID: cfg.Radarr.QualityProfileID,
				RootFolder:       cfg.Radarr.RootFolder,
				Tags:             cfg.Radarr.Tags,
			},
			TV: library.AddOptions{
				QualityProfileID: cfg.Sonarr.QualityProfileID,
				RootFolder:       cfg.Sonarr.RootFolder,
				Tags:             cfg.Sonarr.Tags,
			},
			Anime: library.AddOptions{
				QualityProfileID: cfg.Sonarr.AnimeQualityProfileID,
				RootFolder:       cfg.Sonarr.AnimeRootFolder,
				Tags:             cfg.Sonarr.Tags,
			},
		},
	}

	if cfg.Radarr.Configured() {
		r, err := arr.NewRadarr(cfg.Radarr.URL, cfg.Radarr.APIKey, arr.WithTimeout(seconds(cfg.Radarr.TimeoutSec)))
		if err != nil {
			return nil, fmt.Errorf("app: radarr: %w", err)
		}
		cached, err := library.NewCached(r, 0)
		if err != nil {
			return nil, fmt.Errorf("app: radarr: %w", err)
		}
		set.Movies = cached
	}
	if cfg.Sonarr.Configured() {
		s, err := arr.NewSonarr(cfg.Sonarr.URL, cfg.Sonarr.APIKey, arr.WithTimeout(seconds(cfg.Sonarr.TimeoutSec)))
		if err != nil {
			return nil, fmt.Errorf("app: sonarr: %w", err)
		}
		cached, err := library.NewCached(s, 0)
		if err != nil {
			return nil, fmt.Errorf("app: sonarr: %w", err)
		}
		set.TV = cached
	}

	switch cfg.Parser.Kind {
	case "anthropic":
		p, err := parser.NewAnthropic(parser.AnthropicOpts{
			APIKey:  cfg.Parser.APIKey,
			Model:   cfg.Parser.Model,
			Timeout: seconds(cfg.Parser.TimeoutSec),
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		set.Parser = p
	default:
		set.Parser = parser.Rules{}
	}
	return set, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
