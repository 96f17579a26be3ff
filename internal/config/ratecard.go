package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ModelRate prices a model in credits per 1000 tokens.
type ModelRate struct {
	InputPer1K  float64 `mapstructure:"inputPer1k" json:"input_per_1k"`
	OutputPer1K float64 `mapstructure:"outputPer1k" json:"output_per_1k"`
}

// RateCard maps model identifiers to their credit rates.
type RateCard struct {
	Default ModelRate            `mapstructure:"default" json:"default"`
	Models  map[string]ModelRate `mapstructure:"models" json:"models"`
}

// Rate returns the rate for a model, falling back to the default rate
// for unknown models.
func (rc RateCard) Rate(model string) ModelRate {
	if rate, ok := rc.Models[strings.ToLower(strings.TrimSpace(model))]; ok {
		return rate
	}
	return rc.Default
}

func DefaultRateCard() RateCard {
	return RateCard{
		Default: ModelRate{InputPer1K: 1, OutputPer1K: 2},
		Models: map[string]ModelRate{
			"gpt-4o":        {InputPer1K: 3, OutputPer1K: 9},
			"gpt-4o-mini":   {InputPer1K: 1, OutputPer1K: 2},
			"deepseek-chat": {InputPer1K: 1, OutputPer1K: 1},
		},
	}
}

// RateCardHolder serves the current rate card and hot-reloads it when the
// backing file changes.
type RateCardHolder struct {
	current atomic.Value // holds RateCard
}

func NewRateCardHolder() (*RateCardHolder, error) {
	v := viper.New()

	v.SetConfigName("ratecard")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/costlens/config")
	v.AddConfigPath("/etc/costlens")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COSTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &RateCardHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultRateCard())
		return holder, nil
	}

	var card RateCard
	if err := v.UnmarshalKey("ratecard", &card); err != nil {
		return nil, err
	}
	if err := validateRateCard(card); err != nil {
		return nil, err
	}
	holder.current.Store(card)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RateCard
		if err := v.UnmarshalKey("ratecard", &updated); err != nil {
			log.Printf("[ratecard] reload failed: %v", err)
			return
		}
		if err := validateRateCard(updated); err != nil {
			log.Printf("[ratecard] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ratecard] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticRateCardHolder wraps a fixed rate card with no file watching.
func NewStaticRateCardHolder(card RateCard) *RateCardHolder {
	holder := &RateCardHolder{}
	holder.current.Store(card)
	return holder
}

func (h *RateCardHolder) Get() RateCard {
	return h.current.Load().(RateCard)
}

func validateRateCard(card RateCard) error {
	if card.Default.InputPer1K < 0 || card.Default.OutputPer1K < 0 {
		return errors.New("ratecard.default rates cannot be negative")
	}
	for model, rate := range card.Models {
		if rate.InputPer1K < 0 || rate.OutputPer1K < 0 {
			return errors.New("ratecard rate for " + model + " cannot be negative")
		}
	}
	return nil
}
