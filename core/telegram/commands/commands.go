package commands

import "github.com/m3rciful/stickerbot/core/pipeline"

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     pipeline.Handler
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
	// Buttons are translation keys whose localized text triggers the command too.
	Buttons []string
	// Gates run before the handler, after the admin check.
	Gates []pipeline.Gate
}
