package main

import (
	"fmt"
	"log"
	"time"

	"github.com/m3rciful/stickerbot/core/cmd"
	"github.com/m3rciful/stickerbot/internal/stickers"
)

func main() {
	startedAt := time.Now()
	err := cmd.Run(cmd.Options{
		Name:              "stickerbot",
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{".env"},
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return stickers.LoadConfig(path)
		},
		Bootstrap: func(cc cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			cfg, ok := cc.(*stickers.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cc)
			}
			return stickers.Bootstrap(cfg, stickers.Env{StartedAt: startedAt})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
