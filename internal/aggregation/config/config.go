package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
	"upagg/pkg/platform/strings"
)

const (
	// DefaultFlattenDepth bounds single-source parent chains.
	DefaultFlattenDepth = 14
	// DefaultChainMaxHops bounds cross-source ownership chains.
	DefaultChainMaxHops = 10
	// DefaultSupranational marks supranational issuers, which resolve to themselves.
	DefaultSupranational = "XSN"
)

// DefaultHavens is the haven set of the reference study.
var DefaultHavens = []string{
	"BHS", "CYM", "COK", "DMA", "LIE", "MHL", "NRU", "NIU", "PAN", "KNA",
	"VCT", "BMU", "CUW", "JEY", "BRB", "MUS", "VGB", "VIR", "ATG", "AND",
	"AIA", "ABW", "BLZ", "BRN", "CPV", "GIB", "GRD", "DOM", "GGY", "IMN",
	"MCO", "MSR", "PLW", "WSM", "SMR", "SYC", "MAF", "TTO", "TCA", "VUT",
	"ANT", "CHI", "GLP", "IMY", "MTQ", "REU", "SHN", "TUV", "WLF", "HKG",
}

// Config is the aggregation policy as written in YAML.
type Config struct {
	Preference     map[string]int      `yaml:"preference"`
	Havens         []string            `yaml:"havens"`
	Exclusions     map[string][]string `yaml:"exclusions"`
	Links          map[string]string   `yaml:"links"`
	CountryAliases map[string]string   `yaml:"country_aliases"`
	Supranational  string              `yaml:"supranational_code"`
	InvalidIDs     []string            `yaml:"invalid_entity_ids"`
	NameSources    []string            `yaml:"name_sources"`
	FlattenDepth   int                 `yaml:"flatten_depth"`
	ChainMaxHops   int                 `yaml:"chain_max_hops"`
}

// DefaultConfig returns the policy of the reference study without manual links.
func DefaultConfig() *Config {
	havens := make([]string, len(DefaultHavens))
	copy(havens, DefaultHavens)
	return &Config{
		Preference:     map[string]int{"bvd": 1, "dlg": 2, "fds": 3, "ciq": 4, "sdc": 5},
		Havens:         havens,
		CountryAliases: map[string]string{"II": DefaultSupranational},
		Supranational:  DefaultSupranational,
		InvalidIDs:     []string{"000000", "#N/A N"},
		NameSources:    []string{"sdc", "ciq"},
		FlattenDepth:   DefaultFlattenDepth,
		ChainMaxHops:   DefaultChainMaxHops,
	}
}

// Load reads a YAML policy file. Omitted scalar settings fall back to the
// defaults; preference and havens must be stated explicitly.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, "read policy file")
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, "parse policy YAML")
	}

	def := DefaultConfig()
	if cfg.Supranational == "" {
		cfg.Supranational = def.Supranational
	}
	if cfg.InvalidIDs == nil {
		cfg.InvalidIDs = def.InvalidIDs
	}
	if cfg.NameSources == nil {
		cfg.NameSources = def.NameSources
	}
	if cfg.CountryAliases == nil {
		cfg.CountryAliases = def.CountryAliases
	}
	if cfg.FlattenDepth == 0 {
		cfg.FlattenDepth = def.FlattenDepth
	}
	if cfg.ChainMaxHops == 0 {
		cfg.ChainMaxHops = def.ChainMaxHops
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that Compile cannot repair.
func (c *Config) Validate() error {
	if len(c.Preference) == 0 {
		return dErrors.New(dErrors.CodeConfig, "preference order is required")
	}
	if len(strings.DedupeCodes(c.Havens)) == 0 {
		return dErrors.New(dErrors.CodeConfig, "haven set is required")
	}
	if c.FlattenDepth < 1 {
		return dErrors.Newf(dErrors.CodeConfig, "flatten_depth must be positive, got %d", c.FlattenDepth)
	}
	if c.ChainMaxHops < 1 {
		return dErrors.Newf(dErrors.CodeConfig, "chain_max_hops must be positive, got %d", c.ChainMaxHops)
	}
	for src := range c.Exclusions {
		if _, ok := c.Preference[src]; !ok {
			return dErrors.Newf(dErrors.CodeConfig, "exclusions reference unknown source %q", src)
		}
	}
	return nil
}

// Policy is the compiled, typed form of Config used by the pipeline stages.
type Policy struct {
	Preference     models.Preference
	Havens         models.HavenSet
	Exclusions     map[models.Source]map[models.EntityID]struct{}
	Links          map[models.EntityID]models.EntityID
	CountryAliases map[models.Country]models.Country
	Supranational  models.Country
	InvalidIDs     map[models.EntityID]struct{}
	NameSources    []models.Source
	FlattenDepth   int
	ChainMaxHops   int
}

// Compile validates c and converts it into a Policy.
func (c *Config) Compile() (*Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ranks := make(map[models.Source]int, len(c.Preference))
	for src, r := range c.Preference {
		ranks[models.Source(src)] = r
	}
	pref, err := models.NewPreference(ranks)
	if err != nil {
		return nil, err
	}
	havens, err := models.NewHavenSet(c.Havens)
	if err != nil {
		return nil, err
	}

	p := &Policy{
		Preference:     pref,
		Havens:         havens,
		Exclusions:     make(map[models.Source]map[models.EntityID]struct{}, len(c.Exclusions)),
		Links:          make(map[models.EntityID]models.EntityID, len(c.Links)),
		CountryAliases: make(map[models.Country]models.Country, len(c.CountryAliases)),
		Supranational:  models.ParseCountry(c.Supranational),
		InvalidIDs:     map[models.EntityID]struct{}{"": {}},
		FlattenDepth:   c.FlattenDepth,
		ChainMaxHops:   c.ChainMaxHops,
	}
	for src, ids := range c.Exclusions {
		set := make(map[models.EntityID]struct{}, len(ids))
		for _, id := range strings.DedupeCodes(ids) {
			set[models.EntityID(id)] = struct{}{}
		}
		p.Exclusions[models.Source(src)] = set
	}
	for child, parent := range c.Links {
		childID, parentID := models.ParseEntityID(child), models.ParseEntityID(parent)
		if childID == "" || parentID == "" {
			return nil, dErrors.Newf(dErrors.CodeConfig, "manual link %q -> %q has an empty side", child, parent)
		}
		p.Links[childID] = parentID
	}
	for from, to := range c.CountryAliases {
		p.CountryAliases[models.ParseCountry(from)] = models.ParseCountry(to)
	}
	for _, id := range c.InvalidIDs {
		p.InvalidIDs[models.EntityID(id)] = struct{}{}
	}
	for _, src := range strings.DedupeAndTrimLower(c.NameSources) {
		p.NameSources = append(p.NameSources, models.Source(src))
	}
	return p, nil
}

// LinkChildren returns the manual link children in sorted order.
func (p *Policy) LinkChildren() []models.EntityID {
	out := make([]models.EntityID, 0, len(p.Links))
	for child := range p.Links {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Excluded reports whether child rows of src are dropped before flattening.
func (p *Policy) Excluded(src models.Source, child models.EntityID) bool {
	_, ok := p.Exclusions[src][child]
	return ok
}

// InvalidID reports whether id is filtered from the output.
func (p *Policy) InvalidID(id models.EntityID) bool {
	_, ok := p.InvalidIDs[id]
	return ok
}

// Alias maps a raw source country through the configured aliases.
func (p *Policy) Alias(c models.Country) models.Country {
	if to, ok := p.CountryAliases[c]; ok {
		return to
	}
	return c
}

// DefaultPolicy compiles DefaultConfig. It panics only if the defaults are broken.
func DefaultPolicy() *Policy {
	p, err := DefaultConfig().Compile()
	if err != nil {
		panic(fmt.Sprintf("default aggregation policy: %v", err))
	}
	return p
}
