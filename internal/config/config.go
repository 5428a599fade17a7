// Package config loads crawl settings from a TOML file.
//
// Every key is optional; only keys present in the file override the
// defaults, and command-line flags override the file in turn.
//
//	start_url = "https://docs.example.com/"
//	mode = "both"
//	max_pages = 200
//	delay_ms = 250
//	strip_selectors = ".promo, #newsletter"
//
//	[output]
//	path = "docs.ndjson"
//	format = "ndjson"
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ramkansal/deepcrawl/internal/crawler"
)

// File mirrors the TOML layout. Pointer fields distinguish "unset" from
// zero values.
type File struct {
	StartURL             *string  `toml:"start_url"`
	Mode                 *string  `toml:"mode"`
	RenderJS             *bool    `toml:"render_js"`
	MaxPages             *int     `toml:"max_pages"`
	MaxDepth             *int     `toml:"max_depth"`
	SameDomainOnly       *bool    `toml:"same_domain_only"`
	IncludeRegex         *string  `toml:"include_regex"`
	ExcludeRegex         *string  `toml:"exclude_regex"`
	StripSelectors       *string  `toml:"strip_selectors"`
	DedupeCommonBlocks   *bool    `toml:"dedupe_common_blocks"`
	CommonBlockThreshold *float64 `toml:"common_block_threshold"`
	MinBlockChars        *int     `toml:"min_block_chars"`
	RespectRobots        *bool    `toml:"respect_robots"`
	Concurrency          *int     `toml:"concurrency"`
	DelayMs              *int     `toml:"delay_ms"`
	TimeoutMs            *int     `toml:"timeout_ms"`
	UserAgent            *string  `toml:"user_agent"`
	Headers              []string `toml:"headers"`
	OrgID                *string  `toml:"org_id"`
	ChromeBin            *string  `toml:"chrome_bin"`

	Output Output `toml:"output"`
	Log    Log    `toml:"log"`
}

// Output selects where documents are written.
type Output struct {
	Path   string `toml:"path"`
	Format string `toml:"format"`
}

// Log configures logging.
type Log struct {
	Verbose bool `toml:"verbose"`
	JSON    bool `toml:"json"`
}

// ErrUnknownKey is returned when the file contains keys File does not know.
var ErrUnknownKey = errors.New("unknown config key")

// Load reads and decodes the TOML file at path. Unknown keys are rejected
// so that typos do not silently fall back to defaults.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var file File
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrUnknownKey, strict.String())
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &file, nil
}

// Apply copies every key set in the file onto cfg.
func (f *File) Apply(cfg *crawler.CrawlConfig) error {
	if f.Mode != nil {
		m, err := crawler.ParseMode(*f.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = m
	}
	setString(&cfg.StartURL, f.StartURL)
	setBool(&cfg.RenderJS, f.RenderJS)
	setInt(&cfg.MaxPages, f.MaxPages)
	setInt(&cfg.MaxDepth, f.MaxDepth)
	setBool(&cfg.SameDomainOnly, f.SameDomainOnly)
	setString(&cfg.IncludeRegex, f.IncludeRegex)
	setString(&cfg.ExcludeRegex, f.ExcludeRegex)
	setString(&cfg.StripSelectors, f.StripSelectors)
	setBool(&cfg.DedupeCommonBlocks, f.DedupeCommonBlocks)
	if f.CommonBlockThreshold != nil {
		cfg.CommonBlockThreshold = *f.CommonBlockThreshold
	}
	setInt(&cfg.MinBlockChars, f.MinBlockChars)
	setBool(&cfg.RespectRobots, f.RespectRobots)
	setInt(&cfg.Concurrency, f.Concurrency)
	if f.DelayMs != nil {
		cfg.Delay = time.Duration(*f.DelayMs) * time.Millisecond
	}
	if f.TimeoutMs != nil {
		cfg.Timeout = time.Duration(*f.TimeoutMs) * time.Millisecond
	}
	setString(&cfg.UserAgent, f.UserAgent)
	if len(f.Headers) > 0 {
		cfg.CustomHeaders = append([]string(nil), f.Headers...)
	}
	setString(&cfg.OrgID, f.OrgID)
	setString(&cfg.ChromeBin, f.ChromeBin)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
