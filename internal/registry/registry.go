package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
)

// Credentials is the secret material for one server, keyed by field name
type Credentials map[string]string

// Get returns the trimmed value of a credential field
func (c Credentials) Get(field string) string {
	return strings.TrimSpace(c[field])
}

// Has reports whether every field is set
func (c Credentials) Has(fields ...string) bool {
	for _, f := range fields {
		if c.Get(f) == "" {
			return false
		}
	}
	return true
}

// Factory knows how to turn a credential bag into a server config for one
// tool-provider family.
type Factory struct {
	ID   string
	Name string

	// Validate must be a pure predicate.
	Validate func(Credentials) bool
	// Build returns an error naming the missing field when the bag is invalid.
	Build func(Credentials) (proxy.Config, error)

	// AllowedTools bounds what the model may call on this server.
	AllowedTools []string
	// EnvVars maps credential field to the environment variable it is read from.
	EnvVars map[string]string
}

// Status classifies why a server is unavailable
type Status string

const (
	StatusCredentialsMissing Status = "credentials-missing"
	StatusInvalidCredentials Status = "invalid-credentials"
	StatusConnectionFailed   Status = "connection-failed"
)

// Unavailable records a server that can't be used this run
type Unavailable struct {
	ServerID string `json:"serverId"`
	Reason   string `json:"reason"`
	Status   Status `json:"status"`
}

type Summary struct {
	Registered         int `json:"registered"`
	Available          int `json:"available"`
	Unavailable        int `json:"unavailable"`
	CredentialsMissing int `json:"credentialsMissing"`
	InvalidCredentials int `json:"invalidCredentials"`
	ConnectionFailed   int `json:"connectionFailed"`
}

// Report partitions every registered factory into available or unavailable
type Report struct {
	Available   []proxy.Config `json:"available"`
	Unavailable []Unavailable  `json:"unavailable"`
	Summary     Summary        `json:"summary"`
}

// HasMinimumServers reports whether at least n servers are available
func HasMinimumServers(r Report, n int) bool {
	return len(r.Available) >= n
}

var ErrInvalidFactory = errors.New("invalid server factory")

// Registry holds the server factories for a process. It is read-only after New.
type Registry struct {
	factories []Factory
	logger    *slog.Logger
}

// New validates and registers factories in order. Registration order breaks priority ties.
func New(logger *slog.Logger, factories ...Factory) (*Registry, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	seen := make(map[string]struct{}, len(factories))
	for _, f := range factories {
		if strings.TrimSpace(f.ID) == "" {
			return nil, fmt.Errorf("%w: id is required", ErrInvalidFactory)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidFactory, f.ID)
		}
		seen[f.ID] = struct{}{}
		if f.Validate == nil || f.Build == nil {
			return nil, fmt.Errorf("%w: %s: validate and build are required", ErrInvalidFactory, f.ID)
		}
		if err := checkReadOnly(f.AllowedTools); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFactory, f.ID, err)
		}
	}

	return &Registry{factories: slices.Clone(factories), logger: logger}, nil
}

// Factories returns the registered factories in registration order
func (r *Registry) Factories() []Factory {
	return slices.Clone(r.factories)
}

// Get returns a factory by id
func (r *Registry) Get(id string) (Factory, bool) {
	for _, f := range r.factories {
		if f.ID == id {
			return f, true
		}
	}
	return Factory{}, false
}

// Len returns the number of registered factories
func (r *Registry) Len() int {
	return len(r.factories)
}

// Availability builds a fresh report from per-server credentials. Build
// failures are recorded, never returned. The same input always yields the same partition.
func (r *Registry) Availability(creds map[string]Credentials) Report {
	type built struct {
		cfg   proxy.Config
		order int
	}

	var ok []built
	var bad []Unavailable

	for i, f := range r.factories {
		bag, present := creds[f.ID]
		if !present {
			bag = Credentials{}
		}

		if !f.Validate(maps.Clone(bag)) {
			if !present {
				bad = append(bad, Unavailable{ServerID: f.ID, Status: StatusCredentialsMissing, Reason: "no credentials configured for " + f.displayName()})
			} else {
				bad = append(bad, Unavailable{ServerID: f.ID, Status: StatusInvalidCredentials, Reason: "credentials for " + f.displayName() + " failed validation"})
			}
			continue
		}

		cfg, err := f.safeBuild(maps.Clone(bag))
		if err == nil {
			if len(cfg.AllowedTools) == 0 {
				cfg.AllowedTools = slices.Clone(f.AllowedTools)
			}
			err = cfg.Validate()
		}
		if err != nil {
			bad = append(bad, Unavailable{ServerID: f.ID, Status: StatusConnectionFailed, Reason: err.Error()})
			continue
		}
		ok = append(ok, built{cfg: cfg, order: i})
	}

	sort.SliceStable(ok, func(i, j int) bool {
		if ok[i].cfg.Priority != ok[j].cfg.Priority {
			return ok[i].cfg.Priority < ok[j].cfg.Priority
		}
		return ok[i].order < ok[j].order
	})

	report := Report{
		Available:   make([]proxy.Config, 0, len(ok)),
		Unavailable: bad,
	}
	for _, b := range ok {
		report.Available = append(report.Available, b.cfg)
	}
	report.Summary = summarize(len(r.factories), report)

	r.log(report)
	return report
}

func (f Factory) displayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

func (f Factory) safeBuild(bag Credentials) (cfg proxy.Config, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cfg, err = proxy.Config{}, fmt.Errorf("%s: build panicked: %v", f.ID, rec)
		}
	}()
	cfg, err = f.Build(bag)
	if err != nil {
		return proxy.Config{}, err
	}
	if cfg.ID == "" {
		cfg.ID = f.ID
	}
	if cfg.Name == "" {
		cfg.Name = f.Name
	}
	return cfg, nil
}

func summarize(registered int, r Report) Summary {
	s := Summary{
		Registered:  registered,
		Available:   len(r.Available),
		Unavailable: len(r.Unavailable),
	}
	for _, u := range r.Unavailable {
		switch u.Status {
		case StatusCredentialsMissing:
			s.CredentialsMissing++
		case StatusInvalidCredentials:
			s.InvalidCredentials++
		case StatusConnectionFailed:
			s.ConnectionFailed++
		}
	}
	return s
}

func (r *Registry) log(report Report) {
	ids := make([]string, 0, len(report.Available))
	for _, c := range report.Available {
		ids = append(ids, c.ID)
	}
	r.logger.Info("mcp server availability",
		"registered", report.Summary.Registered,
		"available", report.Summary.Available,
		"unavailable", report.Summary.Unavailable,
		"servers", ids,
	)
	for _, u := range report.Unavailable {
		r.logger.Debug("mcp server unavailable", "server", u.ServerID, "status", string(u.Status), "reason", u.Reason)
	}
}
