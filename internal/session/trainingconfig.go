package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgellm/forge/internal/errors"
	"gopkg.in/yaml.v3"
)

// TrainingConfig is the immutable snapshot of run parameters captured at launch.
// It is read from a user YAML file and stored verbatim in the session JSON.
type TrainingConfig struct {
	ModelName      string    `yaml:"model_name" json:"model_name"`
	FineTuneType   string    `yaml:"fine_tune_type" json:"fine_tune_type"`
	NumLayers      int       `yaml:"num_layers" json:"num_layers"`
	BatchSize      int       `yaml:"batch_size" json:"batch_size"`
	LearningRate   float64   `yaml:"learning_rate" json:"learning_rate"`
	LRSchedule     string    `yaml:"lr_schedule" json:"lr_schedule"`
	LRScheduleArgs []float64 `yaml:"lr_schedule_args,omitempty" json:"lr_schedule_args,omitempty"`
	WarmupSteps    int       `yaml:"warmup_steps" json:"warmup_steps"`
	LRDecayFactor  float64   `yaml:"lr_decay_factor" json:"lr_decay_factor"`
	WeightDecay    float64   `yaml:"weight_decay" json:"weight_decay"`
	MaxIterations  int       `yaml:"max_iterations" json:"max_iterations"`
	SaveEvery      int       `yaml:"save_every" json:"save_every"`
	StepsPerReport int       `yaml:"steps_per_report" json:"steps_per_report"`
	StepsPerEval   int       `yaml:"steps_per_eval" json:"steps_per_eval"`
	ValBatches     int       `yaml:"val_batches" json:"val_batches"`
	MaxSeqLength   int       `yaml:"max_seq_length" json:"max_seq_length"`
	Seed           int       `yaml:"seed" json:"seed"`
	DataDir        string    `yaml:"data_dir" json:"data_dir"`

	// DatasetTotalTokens is the epoch denominator. Zero means unknown.
	DatasetTotalTokens int64 `yaml:"dataset_total_tokens" json:"dataset_total_tokens"`

	EnableEarlyStopping   bool    `yaml:"enable_early_stopping" json:"enable_early_stopping"`
	EarlyStoppingPatience int     `yaml:"early_stopping_patience" json:"early_stopping_patience"`
	MinLossImprovement    float64 `yaml:"min_loss_improvement" json:"min_loss_improvement"`
	OverfittingThreshold  float64 `yaml:"overfitting_threshold" json:"overfitting_threshold"`

	// OutputDir is the run directory. Empty means derive one under the sessions root.
	OutputDir string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
}

// DefaultTrainingConfig returns the values used for any key the YAML omits.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		FineTuneType:          "lora",
		NumLayers:             16,
		BatchSize:             4,
		LearningRate:          5e-6,
		LRSchedule:            "cosine_decay",
		WarmupSteps:           150,
		LRDecayFactor:         0.1,
		WeightDecay:           0.01,
		MaxIterations:         1000,
		SaveEvery:             100,
		StepsPerReport:        10,
		StepsPerEval:          25,
		ValBatches:            25,
		MaxSeqLength:          2048,
		Seed:                  42,
		DataDir:               "data",
		EarlyStoppingPatience: 3,
		MinLossImprovement:    0.001,
		OverfittingThreshold:  0.1,
	}
}

// LoadTrainingConfig reads a training config YAML file on top of the defaults
// and validates the result.
func LoadTrainingConfig(path string) (TrainingConfig, error) {
	cfg := DefaultTrainingConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read training config %s", path),
			"Check that the file exists and is readable")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Training config %s is not valid YAML", path),
			"Fix the YAML syntax and try again")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields the trainer and the policy engine depend on.
func (c TrainingConfig) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return errors.New(errors.ErrConfig,
			"model_name is required",
			"Set model_name to a local path or a hub identifier")
	}
	positives := []struct {
		name  string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"max_iterations", c.MaxIterations},
		{"save_every", c.SaveEvery},
		{"steps_per_report", c.StepsPerReport},
		{"steps_per_eval", c.StepsPerEval},
		{"max_seq_length", c.MaxSeqLength},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be positive, got %d", p.name, p.value),
				fmt.Sprintf("Set %s to a value greater than 0", p.name))
		}
	}
	if c.LearningRate <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("learning_rate must be positive, got %g", c.LearningRate),
			"Typical values are between 1e-6 and 1e-4")
	}
	if c.DatasetTotalTokens < 0 {
		return errors.New(errors.ErrConfig,
			"dataset_total_tokens can't be negative",
			"Use 0 when the dataset size is unknown")
	}
	if c.EarlyStoppingPatience < 0 || c.MinLossImprovement < 0 || c.OverfittingThreshold < 0 {
		return errors.New(errors.ErrConfig,
			"Early stopping settings can't be negative",
			"Check early_stopping_patience, min_loss_improvement and overfitting_threshold")
	}
	return nil
}

// RunName builds a descriptive run directory name such as
// "Qwen3_4B_lr5e_06_bs4_iter1000_2026-01-02_15-04".
func (c TrainingConfig) RunName(now time.Time) string {
	model := filepath.Base(strings.TrimRight(c.ModelName, "/"))
	model = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(model)

	parts := []string{
		model,
		strings.ReplaceAll(fmt.Sprintf("lr%.0e", c.LearningRate), "-", "_"),
		fmt.Sprintf("bs%d", c.BatchSize),
		fmt.Sprintf("iter%d", c.MaxIterations),
	}
	if c.LRSchedule != "" && c.LRSchedule != "cosine_decay" {
		parts = append(parts, "sched_"+c.LRSchedule)
	}
	if c.MaxSeqLength != 2048 {
		parts = append(parts, fmt.Sprintf("seq%d", c.MaxSeqLength))
	}
	stamp := now.Format("2006-01-02_15-04-05")

	const maxLen = 150
	name := strings.Join(append(parts, stamp), "_")
	if len(name) > maxLen {
		over := len(name) - maxLen
		if over < len(model) {
			parts[0] = model[:len(model)-over]
		}
		name = strings.Join(append(parts, stamp), "_")
	}
	return name
}

// trainerYAML is the config file handed to an MLX-LM style trainer.
type trainerYAML struct {
	Model          string          `yaml:"model"`
	Train          bool            `yaml:"train"`
	FineTuneType   string          `yaml:"fine_tune_type"`
	Data           string          `yaml:"data"`
	NumLayers      int             `yaml:"num_layers"`
	BatchSize      int             `yaml:"batch_size"`
	Iters          int             `yaml:"iters"`
	LearningRate   float64         `yaml:"learning_rate"`
	StepsPerReport int             `yaml:"steps_per_report"`
	StepsPerEval   int             `yaml:"steps_per_eval"`
	ValBatches     int             `yaml:"val_batches"`
	SaveEvery      int             `yaml:"save_every"`
	MaxSeqLength   int             `yaml:"max_seq_length"`
	Seed           int             `yaml:"seed"`
	AdapterPath    string          `yaml:"adapter_path"`
	LRSchedule     *lrScheduleYAML `yaml:"lr_schedule,omitempty"`
	Optimizer      string          `yaml:"optimizer"`
	OptimizerCfg   map[string]any  `yaml:"optimizer_config,omitempty"`
}

type lrScheduleYAML struct {
	Name      string    `yaml:"name"`
	Arguments []float64 `yaml:"arguments"`
	Warmup    int       `yaml:"warmup"`
}

// TrainerYAML renders the trainer's config file with checkpoints written to adapterPath.
func (c TrainingConfig) TrainerYAML(adapterPath string) ([]byte, error) {
	out := trainerYAML{
		Model:          c.ModelName,
		Train:          true,
		FineTuneType:   c.FineTuneType,
		Data:           c.DataDir,
		NumLayers:      c.NumLayers,
		BatchSize:      c.BatchSize,
		Iters:          c.MaxIterations,
		LearningRate:   c.LearningRate,
		StepsPerReport: c.StepsPerReport,
		StepsPerEval:   c.StepsPerEval,
		ValBatches:     c.ValBatches,
		SaveEvery:      c.SaveEvery,
		MaxSeqLength:   c.MaxSeqLength,
		Seed:           c.Seed,
		AdapterPath:    adapterPath,
		Optimizer:      "adamw",
	}
	if c.WeightDecay > 0 {
		out.OptimizerCfg = map[string]any{"adamw": map[string]any{"weight_decay": c.WeightDecay}}
	}
	if c.LRSchedule != "" && c.LRSchedule != "constant" {
		args := c.LRScheduleArgs
		if len(args) == 0 {
			// Peak rate, decay steps, end rate.
			end := c.LearningRate * c.LRDecayFactor
			args = []float64{c.LearningRate, float64(c.MaxIterations), end}
		}
		out.LRSchedule = &lrScheduleYAML{Name: c.LRSchedule, Arguments: args, Warmup: c.WarmupSteps}
	}
	return yaml.Marshal(&out)
}
