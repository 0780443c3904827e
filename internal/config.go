package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/api"
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/site"
	"github.com/starford/sitefeed/internal/tagcloud"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// AdminName is the viewer authenticated by the single auth.token.
const AdminName = "admin"

var (
	absPathRe = regexp.MustCompile(`^/`)
	baseURLRe = regexp.MustCompile(`^https?://[^/\s]+`)
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Site     SiteConfig        `yaml:"site"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Access   AccessConfig      `yaml:"access"`
	Feed     FeedConfig        `yaml:"feed"`
	TagCloud TagCloudConfig    `yaml:"tag_cloud"`
	Boxes    BoxesConfig       `yaml:"boxes"`
	MCP      MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Site, &c.SQLite, &c.Auth, &c.Feed, &c.TagCloud, &c.Boxes,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// EventThrottle is the minimum interval between feeds.invalidated events.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	)
}

// SiteConfig locates the site content and how it is linked.
type SiteConfig struct {
	// Path is the directory holding the site's Markdown files.
	Path     string `yaml:"path"`
	BaseURL  string `yaml:"base_url"`
	TagsPath string `yaml:"tags_path"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BaseURL, validation.Match(baseURLRe).Error("must be an http(s) URL")),
		validation.Field(&c.TagsPath, validation.Match(absPathRe).Error("must be an absolute path")),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// UserConfig maps one bearer token to a viewer.
type UserConfig struct {
	Name  string   `yaml:"name"`
	Token string   `yaml:"token"`
	Roles []string `yaml:"roles"`
}

// Validate validates one user entry.
func (c UserConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Token, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): requests without a token act as the anonymous
//     viewer; known tokens still identify their user.
//   - "token": every request must carry a known Bearer token.
//
// Token is a shortcut for a single user named "admin" with the admin role.
type AuthConfig struct {
	Mode  string       `yaml:"mode"`
	Token string       `yaml:"token"`
	Users []UserConfig `yaml:"users"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Users),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" && len(c.Users) == 0 {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	seen := map[string]bool{c.Token: c.Token != ""}
	for _, u := range c.Users {
		if seen[u.Token] {
			return fmt.Errorf("auth: duplicate token for user %q", u.Name)
		}
		seen[u.Token] = true
	}
	return nil
}

// AuthEnabled returns true when authentication is required.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// Tokens returns the viewer behind every configured token.
func (c *AuthConfig) Tokens() api.Tokens {
	tokens := make(api.Tokens, len(c.Users)+1)
	if c.Token != "" {
		tokens[c.Token] = access.Viewer{Name: AdminName, Roles: []string{AdminName}}
	}
	for _, u := range c.Users {
		tokens[u.Token] = access.Viewer{Name: u.Name, Roles: u.Roles}
	}
	return tokens
}

// AccessConfig holds the permission settings.
type AccessConfig struct {
	// EditorRoles may view and edit every item.
	EditorRoles []string `yaml:"editor_roles"`
}

// FeedConfig bounds feed batches.
type FeedConfig struct {
	DefaultBatchSize int `yaml:"default_batch_size"`
	MaxBatchSize     int `yaml:"max_batch_size"`
}

// Validate validates the feed configuration.
func (c *FeedConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxBatchSize, validation.Required, validation.Min(c.DefaultBatchSize)),
	)
}

// Limits converts the configuration for the feed engine.
func (c *FeedConfig) Limits() feed.Limits {
	return feed.Limits{DefaultBatchSize: c.DefaultBatchSize, MaxBatchSize: c.MaxBatchSize}
}

// TagCloudConfig holds the defaults of the site tag cloud.
type TagCloudConfig struct {
	MaxTags   int      `yaml:"max_tags"`
	ShowCount bool     `yaml:"show_count"`
	Randomize bool     `yaml:"random"`
	Formats   []string `yaml:"formats"`
	// BucketMax is the number of weight buckets (CSS classes).
	BucketMax int `yaml:"css_index_max"`
	// CountWorkers bounds the concurrent per-tag count queries.
	CountWorkers int `yaml:"count_workers"`
}

// Validate validates the tag cloud configuration.
func (c *TagCloudConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxTags, validation.Min(0)),
		validation.Field(&c.BucketMax, validation.Required, validation.Min(1)),
		validation.Field(&c.CountWorkers, validation.Min(0)),
	)
}

// Options converts the configuration for the tag engine.
func (c *TagCloudConfig) Options() tagcloud.Options {
	return tagcloud.Options{
		MaxTags:   c.MaxTags,
		ShowCount: c.ShowCount,
		Randomize: c.Randomize,
		Formats:   c.Formats,
	}
}

// BoxesConfig lists the boxes pinned into every composed bar.
type BoxesConfig struct {
	Fixed []boxes.Fixed `yaml:"fixed"`
}

// Validate validates the fixed boxes.
func (c *BoxesConfig) Validate() error {
	seen := map[string]bool{}
	for i, f := range c.Fixed {
		if err := validation.ValidateStruct(&f,
			validation.Field(&f.Path, validation.Required, validation.Match(absPathRe).Error("must be an absolute path")),
			validation.Field(&f.Capability, validation.In("", "both", string(boxes.Side), string(boxes.Content))),
		); err != nil {
			return fmt.Errorf("boxes: fixed[%d]: %w", i, err)
		}
		if seen[f.Path] {
			return fmt.Errorf("boxes: fixed box %s listed twice", f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}

// MCPConfig holds the identity MCP tool calls act as.
type MCPConfig struct {
	Viewer string   `yaml:"viewer"`
	Roles  []string `yaml:"roles"`
}

// ViewerIdentity returns the MCP viewer, anonymous when none is configured.
func (c *MCPConfig) ViewerIdentity() access.Viewer {
	if strings.TrimSpace(c.Viewer) == "" {
		return access.Anonymous()
	}
	return access.Viewer{Name: c.Viewer, Roles: c.Roles}
}

// ServiceConfig converts the configuration for the site service.
func (c *Config) ServiceConfig() site.Config {
	return site.Config{
		BaseURL:      c.Site.BaseURL,
		TagsPath:     c.Site.TagsPath,
		Limits:       c.Feed.Limits(),
		TagCloud:     c.TagCloud.Options(),
		BucketMax:    c.TagCloud.BucketMax,
		CountWorkers: c.TagCloud.CountWorkers,
		Fixed:        c.Boxes.Fixed,
		EditorRoles:  c.Access.EditorRoles,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:          8080,
				EventThrottle: 2 * time.Second,
			},
		},
		Site: SiteConfig{
			Path:     "./site",
			BaseURL:  "http://localhost:8080",
			TagsPath: "/tags",
		},
		SQLite: SQLiteConfig{
			Path: "./sitefeed.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Access: AccessConfig{
			EditorRoles: []string{AdminName, "editor"},
		},
		Feed: FeedConfig{
			DefaultBatchSize: 20,
			MaxBatchSize:     100,
		},
		TagCloud: TagCloudConfig{
			MaxTags:      25,
			BucketMax:    tagcloud.DefaultBucketMax,
			CountWorkers: 4,
		},
	}
}
