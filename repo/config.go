package repo

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/axiomesh/governor/core"
)

type Config struct {
	RepoRoot   string     `mapstructure:"-" toml:"-"`
	DialUrl    string     `mapstructure:"dial_url" toml:"dial_url"`
	Admin      string     `mapstructure:"admin" toml:"admin"`
	Governance Governance `mapstructure:"governance" toml:"governance"`
	Log        Log        `mapstructure:"log" toml:"log"`
	Watch      Watch      `mapstructure:"watch" toml:"watch"`
}

type Governance struct {
	// 10000 basis points is 100% of the total voting power
	QuorumBasisPoints uint64 `mapstructure:"quorum_basis_points" toml:"quorum_basis_points"`
	// blocks between proposal creation and the start of voting
	VotingDelay uint64 `mapstructure:"voting_delay" toml:"voting_delay"`
	// blocks voting stays open
	VotingPeriod uint64 `mapstructure:"voting_period" toml:"voting_period"`
	// live or snapshot
	QuorumPolicy string `mapstructure:"quorum_policy" toml:"quorum_policy"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Watch struct {
	// execute proposals as soon as they succeed
	AutoExecute bool `mapstructure:"auto_execute" toml:"auto_execute"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		DialUrl:  "ws://localhost:9991",
		Admin:    DefaultAdmin,
		Governance: Governance{
			QuorumBasisPoints: 4000,
			VotingDelay:       1,
			VotingPeriod:      100,
			QuorumPolicy:      string(core.QuorumLive),
		},
		Log: Log{
			Level:        "info",
			Filename:     "governor.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Watch: Watch{
			AutoExecute: false,
		},
	}
}

// GovernorConfig converts the file config into the governor's own config.
func (c *Config) GovernorConfig() (core.Config, error) {
	if !common.IsHexAddress(c.Admin) {
		return core.Config{}, errors.Errorf("admin %q is not a hex address", c.Admin)
	}
	policy := core.QuorumPolicy(c.Governance.QuorumPolicy)
	if !policy.Valid() {
		return core.Config{}, errors.Errorf("unknown quorum policy %q", c.Governance.QuorumPolicy)
	}
	params := core.Params{
		QuorumBasisPoints: c.Governance.QuorumBasisPoints,
		VotingDelay:       c.Governance.VotingDelay,
		VotingPeriod:      c.Governance.VotingPeriod,
	}
	if err := params.Validate(); err != nil {
		return core.Config{}, err
	}

	return core.Config{
		Admin:        common.HexToAddress(c.Admin),
		Params:       params,
		QuorumPolicy: policy,
	}, nil
}
