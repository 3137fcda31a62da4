package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable access-control knobs
type Policy struct {
	RateLimits      RateLimitPolicy `yaml:"rateLimits"`
	RoleMultipliers map[string]int  `yaml:"roleMultipliers"`
	CSRF            CSRFPolicy      `yaml:"csrf"`
}

// RateLimitRule is a request budget per window
type RateLimitRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimitPolicy holds the three presets
type RateLimitPolicy struct {
	API      RateLimitRule `yaml:"api"`
	Auth     RateLimitRule `yaml:"auth"`
	Mutation RateLimitRule `yaml:"mutation"`
}

// CSRFPolicy configures token handling. Strict defaults to true outside production.
type CSRFPolicy struct {
	Strict           *bool         `yaml:"strict"`
	RotateOnValidate bool          `yaml:"rotateOnValidate"`
	AutoIssue        bool          `yaml:"autoIssue"`
	TokenTTL         time.Duration `yaml:"tokenTTL"`
	SameSite         string        `yaml:"sameSite"`
}

// StrictFor resolves the fingerprint mode for env
func (p CSRFPolicy) StrictFor(env Environment) bool {
	if p.Strict != nil {
		return *p.Strict
	}
	return !env.IsProduction()
}

// DefaultPolicy returns the built-in presets
func DefaultPolicy() Policy {
	return Policy{
		RateLimits: RateLimitPolicy{
			API:      RateLimitRule{Limit: 100, Window: time.Minute},
			Auth:     RateLimitRule{Limit: 10, Window: 15 * time.Minute},
			Mutation: RateLimitRule{Limit: 30, Window: time.Minute},
		},
		RoleMultipliers: map[string]int{
			"superadmin": 5,
			"admin":      3,
			"superagent": 2,
		},
		CSRF: CSRFPolicy{
			AutoIssue: true,
			TokenTTL:  time.Hour,
			SameSite:  "lax",
		},
	}
}

// LoadPolicy reads a YAML policy file. Fields missing from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over the default policy
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate rejects non-positive budgets and multipliers
func (p Policy) Validate() error {
	rules := map[string]RateLimitRule{
		"api":      p.RateLimits.API,
		"auth":     p.RateLimits.Auth,
		"mutation": p.RateLimits.Mutation,
	}
	for name, rule := range rules {
		if rule.Limit < 1 || rule.Window <= 0 {
			return fmt.Errorf("rate limit %q needs a positive limit and window", name)
		}
	}
	for role, m := range p.RoleMultipliers {
		if m < 1 {
			return fmt.Errorf("role multiplier for %q must be at least 1", role)
		}
	}
	switch p.CSRF.SameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid csrf sameSite %q (must be lax, strict or none)", p.CSRF.SameSite)
	}
	if p.CSRF.TokenTTL <= 0 {
		return fmt.Errorf("csrf token TTL must be positive")
	}
	return nil
}
