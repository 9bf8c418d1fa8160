package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agoramesh/agora-backend/pkg/env"
)

type Config struct {
	DevMode bool

	AgentID        string
	APIPort        string
	InitialBalance int64

	RedisURL         string
	DatabaseHost     string
	DatabaseHostPort string

	ParamsFile string
}

// EconomyParams are the tunable economic constants, loaded from the params
// YAML file when one is configured. Zero values fall back to the per-engine
// defaults.
type EconomyParams struct {
	MaxBalance int64 `yaml:"max_balance"`
	MinStake   int64 `yaml:"min_stake"`
	MaxStake   int64 `yaml:"max_stake"`

	StakingRewardRateBps int64 `yaml:"staking_reward_rate_bps"`

	AuctionWindow      time.Duration `yaml:"auction_window"`
	BaselineDurationMs int64         `yaml:"baseline_duration_ms"`

	DecayRateBps  int64  `yaml:"decay_rate_bps"`
	DecaySchedule string `yaml:"decay_schedule"`

	MinProposalReputationMillirep int64         `yaml:"min_proposal_reputation_millirep"`
	MinVotingReputationMillirep   int64         `yaml:"min_voting_reputation_millirep"`
	ConsensusThresholdBps         int64         `yaml:"consensus_threshold_bps"`
	VotingWindow                  time.Duration `yaml:"voting_window"`
}

var (
	cfg    Config
	params EconomyParams
)

func Init() error {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg = Config{
		DevMode:          env.GetEnvBool("DEV_MODE", false),
		AgentID:          env.GetEnvString("AGENT_ID", ""),
		APIPort:          env.GetEnvString("ECONOMY_RPC_PORT", "9007"),
		InitialBalance:   env.GetEnvInt64("INITIAL_BALANCE", 100),
		RedisURL:         env.GetEnvString("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseHost:     env.GetEnvString("DATABASE_HOST", "localhost"),
		DatabaseHostPort: env.GetEnvString("DATABASE_HOST_PORT", "9042"),
		ParamsFile:       env.GetEnvString("ECONOMY_PARAMS_FILE", ""),
	}

	if cfg.AgentID == "" {
		return fmt.Errorf("AGENT_ID is required")
	}

	if cfg.ParamsFile != "" {
		data, err := os.ReadFile(cfg.ParamsFile)
		if err != nil {
			return fmt.Errorf("error reading params file %s: %w", cfg.ParamsFile, err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return fmt.Errorf("error parsing params file %s: %w", cfg.ParamsFile, err)
		}
	}

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	return nil
}

func IsDevMode() bool {
	return cfg.DevMode
}

func GetAgentID() string {
	return cfg.AgentID
}

func GetAPIPort() string {
	return cfg.APIPort
}

func GetInitialBalance() int64 {
	return cfg.InitialBalance
}

func GetRedisURL() string {
	return cfg.RedisURL
}

func GetDatabaseHost() string {
	return cfg.DatabaseHost
}

func GetDatabaseHostPort() string {
	return cfg.DatabaseHostPort
}

func GetEconomyParams() EconomyParams {
	return params
}
