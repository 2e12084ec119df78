// Package parse turns trainer console lines into metric events.
//
// The grammar has one variant per recognised line shape. Iteration lines
// share a header ("Iter N:") and differ in their body; the final-weights
// line has no header. Each variant is a pure function from text to a
// record, so they can be tested without a parser instance.
package parse

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the variant a line matched.
type Kind int

const (
	KindNone Kind = iota
	KindTrain
	KindValidation
	KindCheckpoint
	KindFinalCheckpoint
)

func (k Kind) String() string {
	switch k {
	case KindTrain:
		return "train"
	case KindValidation:
		return "validation"
	case KindCheckpoint:
		return "checkpoint"
	case KindFinalCheckpoint:
		return "final_checkpoint"
	}
	return "none"
}

// Record is the result of matching one line against the grammar. Only the
// fields the variant reports are set.
type Record struct {
	Kind          Kind
	Iteration     int
	HasIteration  bool
	TrainLoss     *float64
	ValLoss       *float64
	LearningRate  *float64
	ItersPerSec   *float64
	TokensPerSec  *float64
	TrainedTokens *int64
	Epoch         *float64
	PeakMemoryGB  *float64
	ValTimeSec    *float64
	Paths         []string
	Canonical     string
}

// MalformedError reports a line that has a recognised shape but a required
// numeric field that does not parse.
type MalformedError struct {
	Kind  Kind
	Field string
	Value string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s line: bad %s %q", e.Kind, e.Field, e.Value)
}

var (
	// Iter 10: Train loss 2.345, Learning Rate 1.000e-05, ...
	iterHeaderPattern = regexp.MustCompile(`^\s*Iter\s+([^\s:]+)\s*:\s*(.*?)\s*$`)

	// Saved final weights to adapters/adapters.safetensors.
	finalWeightsPattern = regexp.MustCompile(`^\s*Saved final weights to\s+(.+?)\s*$`)

	// One "Key value[unit]" item of a comma separated body.
	fieldPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z/ ]*?)\s+([^\s]+?)\s*(GB|s)?$`)
)

const (
	trainPrefix      = "Train loss"
	valPrefix        = "Val loss"
	checkpointPrefix = "Saved adapter weights to"
)

// Match classifies line and extracts its record. A line outside the grammar
// returns KindNone and a nil error.
func Match(line string) (Record, error) {
	if m := iterHeaderPattern.FindStringSubmatch(line); m != nil {
		body := m[2]
		switch {
		case strings.HasPrefix(body, trainPrefix):
			return matchTrain(m[1], body)
		case strings.HasPrefix(body, valPrefix):
			return matchValidation(m[1], body)
		case strings.HasPrefix(body, checkpointPrefix):
			return matchCheckpoint(m[1], strings.TrimPrefix(body, checkpointPrefix))
		}
		return Record{}, nil
	}
	if m := finalWeightsPattern.FindStringSubmatch(line); m != nil {
		paths := splitPaths(m[1])
		if len(paths) == 0 {
			return Record{}, &MalformedError{Kind: KindFinalCheckpoint, Field: "path", Value: m[1]}
		}
		return Record{Kind: KindFinalCheckpoint, Paths: paths, Canonical: paths[len(paths)-1]}, nil
	}
	return Record{}, nil
}

func matchTrain(iter, body string) (Record, error) {
	rec := Record{Kind: KindTrain}
	if err := rec.setIteration(iter); err != nil {
		return Record{}, err
	}
	fields := splitFields(body)
	loss, ok := fields["train loss"]
	if !ok {
		return Record{}, &MalformedError{Kind: KindTrain, Field: "train loss", Value: body}
	}
	v, err := parseFloat(loss)
	if err != nil {
		return Record{}, &MalformedError{Kind: KindTrain, Field: "train loss", Value: loss}
	}
	rec.TrainLoss = &v

	rec.LearningRate = optionalFloat(fields, "learning rate", "lr")
	rec.ItersPerSec = optionalFloat(fields, "it/sec", "it/s")
	rec.TokensPerSec = optionalFloat(fields, "tokens/sec", "tok/s")
	rec.PeakMemoryGB = optionalFloat(fields, "peak mem", "peak memory")
	rec.Epoch = optionalFloat(fields, "epoch")
	if raw, ok := fields["trained tokens"]; ok {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			rec.TrainedTokens = &n
		}
	}
	return rec, nil
}

func matchValidation(iter, body string) (Record, error) {
	rec := Record{Kind: KindValidation}
	if err := rec.setIteration(iter); err != nil {
		return Record{}, err
	}
	fields := splitFields(body)
	loss, ok := fields["val loss"]
	if !ok {
		return Record{}, &MalformedError{Kind: KindValidation, Field: "val loss", Value: body}
	}
	v, err := parseFloat(loss)
	if err != nil {
		return Record{}, &MalformedError{Kind: KindValidation, Field: "val loss", Value: loss}
	}
	rec.ValLoss = &v
	rec.ValTimeSec = optionalFloat(fields, "val took")
	return rec, nil
}

func matchCheckpoint(iter, rest string) (Record, error) {
	rec := Record{Kind: KindCheckpoint}
	if err := rec.setIteration(iter); err != nil {
		return Record{}, err
	}
	rec.Paths = splitPaths(rest)
	if len(rec.Paths) == 0 {
		return Record{}, &MalformedError{Kind: KindCheckpoint, Field: "path", Value: rest}
	}
	rec.Canonical = CanonicalPath(rec.Iteration, rec.Paths)
	return rec, nil
}

func (r *Record) setIteration(raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return &MalformedError{Kind: r.Kind, Field: "iteration", Value: raw}
	}
	r.Iteration = n
	r.HasIteration = true
	return nil
}

// CanonicalPath picks the numbered snapshot ("0000100_adapters.safetensors")
// for iter when the trainer lists one, else the last path.
//
// MLX-LM writes the same weights twice and reports both as "A and B". The
// numbered file is the one that survives the next save.
func CanonicalPath(iter int, paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	numbered := fmt.Sprintf("%07d_", iter)
	for _, p := range paths {
		if strings.HasPrefix(filepath.Base(p), numbered) {
			return p
		}
	}
	return paths[len(paths)-1]
}

func splitPaths(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ".")
	var out []string
	for _, p := range strings.Split(raw, " and ") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitFields parses "Key value, Key value unit, ..." into a map keyed by
// the lower-cased key.
func splitFields(body string) map[string]string {
	fields := make(map[string]string)
	for _, item := range strings.Split(body, ",") {
		m := fieldPattern.FindStringSubmatch(strings.TrimSpace(item))
		if m == nil {
			continue
		}
		fields[strings.ToLower(m[1])] = strings.TrimSuffix(m[2], "GB")
	}
	return fields
}

func optionalFloat(fields map[string]string, keys ...string) *float64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		if v, err := parseFloat(raw); err == nil {
			return &v
		}
	}
	return nil
}

// parseFloat accepts fixed point and scientific notation. NaN and infinities
// are rejected.
func parseFloat(raw string) (float64, error) {
	raw = strings.TrimSuffix(raw, "s")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}
