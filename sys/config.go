package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvToken           = "DISCORD_TOKEN"
	EnvGuildID         = "GUILD_ID"
	EnvDatabasePath    = "DATABASE_PATH"
	EnvSilent          = "SILENT"
	EnvYoutubeProxy    = "YOUTUBE_PROXY"
	EnvYTPrefix        = "VOICE_YT_PREFIX"
	EnvYTMPrefix       = "VOICE_YTM_PREFIX"
	EnvResolveRate     = "VOICE_RESOLVE_RATE"
	EnvResolveBurst    = "VOICE_RESOLVE_BURST"
	EnvResolveTimeout  = "VOICE_RESOLVE_TIMEOUT"
	EnvPlaylistLimit   = "VOICE_PLAYLIST_LIMIT"
	EnvBitrate         = "VOICE_BITRATE"
	defaultYTPrefix    = "[YT]"
	defaultYTMPrefix   = "[YTM]"
	defaultRate        = 2.0
	defaultBurst       = 4
	defaultTimeout     = 45 * time.Second
	defaultPlaylistMax = 50
	defaultBitrate     = 128000
)

type Config struct {
	Token          string
	GuildID        string
	DatabasePath   string
	Silent         bool
	YoutubeProxy   string
	YoutubePrefix  string
	YTMusicPrefix  string
	ResolveRate    float64
	ResolveBurst   int
	ResolveTimeout time.Duration
	PlaylistLimit  int
	Bitrate        int
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	dbPath := getenv(EnvDatabasePath)
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(getenv(EnvSilent))

	cfg := &Config{
		Token:          getenv(EnvToken),
		GuildID:        strings.TrimSpace(getenv(EnvGuildID)),
		DatabasePath:   dbPath,
		Silent:         silent,
		YoutubeProxy:   getenv(EnvYoutubeProxy),
		YoutubePrefix:  orDefault(getenv(EnvYTPrefix), defaultYTPrefix),
		YTMusicPrefix:  orDefault(getenv(EnvYTMPrefix), defaultYTMPrefix),
		ResolveRate:    defaultRate,
		ResolveBurst:   defaultBurst,
		ResolveTimeout: defaultTimeout,
		PlaylistLimit:  defaultPlaylistMax,
		Bitrate:        defaultBitrate,
	}

	if v := getenv(EnvResolveRate); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvResolveRate, err)
		}
		cfg.ResolveRate = r
	}
	if v := getenv(EnvResolveBurst); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvResolveBurst, err)
		}
		cfg.ResolveBurst = b
	}
	if v := getenv(EnvResolveTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvResolveTimeout, err)
		}
		cfg.ResolveTimeout = d
	}
	if v := getenv(EnvPlaylistLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPlaylistLimit, err)
		}
		cfg.PlaylistLimit = n
	}
	if v := getenv(EnvBitrate); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvBitrate, err)
		}
		cfg.Bitrate = n
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return errors.New("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.ResolveRate <= 0 || c.ResolveBurst <= 0 {
		return fmt.Errorf("resolver limits must be positive (rate %v, burst %d)", c.ResolveRate, c.ResolveBurst)
	}
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be positive", EnvResolveTimeout)
	}
	if c.PlaylistLimit < 1 {
		return fmt.Errorf("invalid %s: must be at least 1", EnvPlaylistLimit)
	}
	if c.Bitrate < 8000 || c.Bitrate > 512000 {
		return fmt.Errorf("invalid %s: %d is outside 8000-512000", EnvBitrate, c.Bitrate)
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
