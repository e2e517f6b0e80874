package banner

import (
	"fmt"
	"sort"
	"strings"

	"meerchat/pkg/config"
)

const banner = `
 __  __                  ____ _           _
|  \/  | ___  ___ _ __  / ___| |__   __ _| |_
| |\/| |/ _ \/ _ \ '__|| |   | '_ \ / _` + "`" + ` | __|
| |  | |  __/  __/ |   | |___| | | | (_| | |_
|_|  |_|\___|\___|_|    \____|_| |_|\__,_|\__|
`

// Print writes the startup banner and a production-readiness checklist.
func Print(eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)
	if cfg == nil {
		return
	}

	fmt.Println("\n== Production? =================================================")
	fmt.Printf("- Store: %s\n", cfg.Store.Backend)
	fmt.Printf("- Rate limit: %s (%d per %s)\n", cfg.RateLimit.Backend, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Duration())
	fmt.Printf("- Change feed: %s\n", cfg.ChangeFeed.Backend)
	if len(cfg.Chat.Channels) > 0 {
		fmt.Printf("- Channels: %s\n", strings.Join(cfg.Chat.Channels, ", "))
	} else {
		fmt.Println("- Channels: any (chat.channels not set)")
	}

	switch {
	case cfg.LLM.Mode == "disabled":
		fmt.Println("- Assistant: disabled")
	case cfg.LLM.APIKey == "":
		fmt.Println("- Assistant: MISSING api key (set OPENAI_API_KEY)")
	default:
		fmt.Printf("- Assistant: %s\n", cfg.LLM.Model)
	}

	if len(cfg.Auth.OAuth) > 0 {
		names := make([]string, 0, len(cfg.Auth.OAuth))
		for n := range cfg.Auth.OAuth {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Printf("- OAuth: %s\n", strings.Join(names, ", "))
	} else {
		fmt.Println("- OAuth: none")
	}
	if len(cfg.Security.CORS.AllowedOrigins) == 0 {
		fmt.Println("- CORS: no origins allowed (set security.cors.allowed_origins)")
	}
	if cfg.Server.PublicURL == "" {
		fmt.Println("- Public URL: not set (avatar and email links will be relative)")
	}
	fmt.Printf("- Avatar limit: %s\n", cfg.Profile.AvatarMaxSize)
	fmt.Println()
}
