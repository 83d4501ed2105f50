package bot

// Set at build time with -ldflags "-X .../internal/bot.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
)
