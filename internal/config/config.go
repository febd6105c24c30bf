package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host     string   `koanf:"host"`
	Http     Http     `koanf:"http"`
	Redis    Redis    `koanf:"redis"`
	Database Database `koanf:"db"`
	Meetup   Meetup   `koanf:"meetup"`
	Discord  Discord  `koanf:"discord"`
	Sync     Sync     `koanf:"sync"`
	Lock     Lock     `koanf:"lock"`
	Refresh  Refresh  `koanf:"refresh"`
	Archive  Archive  `koanf:"archive"`
}

type Http struct {
	Addr string `koanf:"addr"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Meetup struct {
	ClientId     string   `koanf:"clientid"`
	ClientSecret string   `koanf:"clientsecret"`
	AuthUrl      string   `koanf:"authurl"`
	TokenUrl     string   `koanf:"tokenurl"`
	ApiUrl       string   `koanf:"apiurl"`
	Groups       []string `koanf:"groups"`
	// LinkingTtl bounds how long a linking URL handed to a Discord user stays valid.
	LinkingTtl time.Duration `koanf:"linkingttl"`
}

type Discord struct {
	Token   string `koanf:"token"`
	GuildId string `koanf:"guildid"`
	ApiUrl  string `koanf:"apiurl"`
}

type Sync struct {
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
	// RateLimit is the pause between two attendee queries against Meetup.
	RateLimit time.Duration `koanf:"ratelimit"`
	Patterns  []string      `koanf:"patterns"`
}

type Lock struct {
	Wait  time.Duration `koanf:"wait"`
	Lease time.Duration `koanf:"lease"`
}

type Refresh struct {
	OrganizerInterval time.Duration `koanf:"organizerinterval"`
	OrganizerRetry    time.Duration `koanf:"organizerretry"`
	// UserSweep is a cron spec, e.g. "@hourly".
	UserSweep       string        `koanf:"usersweep"`
	UserStaleAfter  time.Duration `koanf:"userstaleafter"`
	ExchangeTimeout time.Duration `koanf:"exchangetimeout"`
}

type Archive struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// DefaultNamingPatterns select the events that are synchronized: session zero, intro games,
// one-shots, the start of a new adventure or campaign and follow-up sessions of a campaign.
var DefaultNamingPatterns = []string{
	`(?i)\bsession\s*0\b`,
	`(?i)[\[\(]\s*intro(\s*games?)?(\s*series)?\s*[\]\)]`,
	`(?i)[\[\(][^\]\)]*one\s*-?\s*shot[^\]\)]*[\]\)]`,
	`(?i)[\[\(]\s*new\s*(adventure|campaign)\s*[\]\)]`,
	`(?i)[\[\(]\s*campaign\s*[a-zA-Z0-9]+\s*[\]\)]`,
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Http: Http{Addr: ":8181"},
		Redis: Redis{
			Addr: "localhost:6379",
			DB:   0,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "swissrpg",
			Pass:   "",
			Name:   "swissrpg",
			Schema: "swissrpg",
		},
		Meetup: Meetup{
			AuthUrl:    "https://secure.meetup.com/oauth2/authorize",
			TokenUrl:   "https://secure.meetup.com/oauth2/access",
			ApiUrl:     "https://api.meetup.com",
			Groups:     []string{"SwissRPG-Zurich", "SwissRPG-Central", "SwissRPG-Romandie"},
			LinkingTtl: 10 * time.Minute,
		},
		Discord: Discord{
			ApiUrl: "https://discord.com/api/v10",
		},
		Sync: Sync{
			Interval:  15 * time.Minute,
			Timeout:   6 * time.Minute,
			RateLimit: 250 * time.Millisecond,
			Patterns:  DefaultNamingPatterns,
		},
		Lock: Lock{
			Wait:  5 * time.Second,
			Lease: 20 * time.Second,
		},
		Refresh: Refresh{
			OrganizerInterval: 48 * time.Hour,
			OrganizerRetry:    time.Hour,
			UserSweep:         "@hourly",
			UserStaleAfter:    30 * 24 * time.Hour,
			ExchangeTimeout:   15 * time.Second,
		},
		Archive: Archive{
			Enabled:  false,
			Interval: 24 * time.Hour,
		},
	}
}

// patternsKey is read from the environment one pattern per line, commas are part of regexes.
const patternsKey = "sync.patterns"

func splitPatterns(value string) []string {
	patterns := make([]string, 0)
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "SWISSRPG_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "SWISSRPG_")), "_", ".")
			if k == patternsKey {
				return k, splitPatterns(v)
			}
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	if err := app.Validate(); err != nil {
		return Application{}, err
	}

	return app, nil
}

// Validate rejects configurations the background tasks cannot run with.
func (a Application) Validate() error {
	if a.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", a.Sync.Interval)
	}
	if a.Sync.Timeout <= 0 || a.Sync.Timeout >= a.Sync.Interval {
		return fmt.Errorf("sync timeout %s must be positive and shorter than the sync interval %s",
			a.Sync.Timeout, a.Sync.Interval)
	}
	if a.Lock.Wait <= 0 || a.Lock.Lease <= 0 {
		return fmt.Errorf("lock wait and lease must be positive")
	}
	if len(a.Sync.Patterns) == 0 {
		return fmt.Errorf("at least one event naming pattern is required")
	}
	for _, pattern := range a.Sync.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid event naming pattern %q: %w", pattern, err)
		}
	}
	if a.Refresh.OrganizerInterval <= 0 || a.Refresh.OrganizerRetry <= 0 {
		return fmt.Errorf("organizer refresh intervals must be positive")
	}
	return nil
}
