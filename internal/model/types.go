package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Role int

const (
	RoleInnovator Role = iota
	RoleProvider
)

func (r Role) String() string {
	switch r {
	case RoleInnovator:
		return "INNOVATOR"
	case RoleProvider:
		return "PROVIDER"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "INNOVATOR":
		return RoleInnovator, nil
	case "PROVIDER":
		return RoleProvider, nil
	default:
		return 0, fmt.Errorf("unknown role: %s", s)
	}
}

// Phase tags the search an agent is currently running. PhaseNone is the
// state before the first search starts.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseM
	PhaseP
	PhaseQ
	PhaseMandP
	PhaseMagain
)

var phaseNames = [...]string{"null", "M", "P", "Q", "MandP", "Magain"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase: %s", s)
}

type Strategy int

const (
	StrategyClosed Strategy = iota
	StrategyLicensing
	StrategyOutsourcing
	StrategyAllianceMax
	StrategyAllianceMin
)

var ErrUnknownStrategy = errors.New("unknown strategy")

var strategyNames = [...]string{"CLOSED", "LICENSING", "OUTSOURCING", "ALLIANCE_MAX", "ALLIANCE_MIN"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// Slug is the lower-case form used in output file names.
func (s Strategy) Slug() string {
	return strings.ToLower(s.String())
}

// ParseStrategy accepts strategy names case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range strategyNames {
		if strings.EqualFold(candidate, trimmed) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func Strategies() []Strategy {
	return []Strategy{StrategyClosed, StrategyLicensing, StrategyOutsourcing, StrategyAllianceMax, StrategyAllianceMin}
}

// Record is one log line: the state of one agent after one round.
type Record struct {
	Run       int     `json:"run"`
	Timestamp int64   `json:"timestamp"`
	Role      Role    `json:"role"`
	AgentID   int     `json:"agent_id"`
	Power     int     `json:"power"`
	Phase     Phase   `json:"phase"`
	Score     float64 `json:"score"`
	Partners  []int   `json:"partners,omitempty"`
}

// String renders the tab-separated log line without the trailing newline.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Run))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(r.Timestamp, 10))
	b.WriteByte('\t')
	b.WriteString(r.Role.String())
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(r.AgentID))
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(r.Power))
	b.WriteByte('\t')
	b.WriteString(r.Phase.String())
	b.WriteByte('\t')
	b.WriteString(strconv.FormatFloat(r.Score, 'f', -1, 64))
	b.WriteByte('\t')
	b.WriteString(FormatPartners(r.Partners))
	return b.String()
}

func FormatPartners(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func ParsePartners(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("partner list must be bracketed: %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	fields := strings.Split(body, ",")
	ids := make([]int, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("parse partner id %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseRecord is the inverse of Record.String.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) != 8 {
		return Record{}, fmt.Errorf("record must have 8 fields, got %d", len(fields))
	}
	run, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("parse run: %w", err)
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse timestamp: %w", err)
	}
	role, err := ParseRole(fields[2])
	if err != nil {
		return Record{}, err
	}
	id, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("parse agent id: %w", err)
	}
	power, err := strconv.Atoi(fields[4])
	if err != nil {
		return Record{}, fmt.Errorf("parse power: %w", err)
	}
	phase, err := ParsePhase(fields[5])
	if err != nil {
		return Record{}, err
	}
	score, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse score: %w", err)
	}
	partners, err := ParsePartners(fields[7])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Run:       run,
		Timestamp: ts,
		Role:      role,
		AgentID:   id,
		Power:     power,
		Phase:     phase,
		Score:     score,
		Partners:  partners,
	}, nil
}

// StrategyResult summarizes one coordinator run.
type StrategyResult struct {
	Strategy       Strategy  `json:"strategy"`
	Stream         string    `json:"stream"`
	Rounds         int       `json:"rounds"`
	Records        int       `json:"records"`
	MeanScore      float64   `json:"mean_score"`
	BestScore      float64   `json:"best_score"`
	FinalScores    []float64 `json:"final_scores"`
	MeanTimestamp  float64   `json:"mean_timestamp"`
	FitnessEvals   uint64    `json:"fitness_evals"`
	CacheHits      uint64    `json:"cache_hits"`
	ProviderScores []float64 `json:"provider_scores,omitempty"`
}

// RunSummary collects every strategy result for one (case, run) pair.
type RunSummary struct {
	VersionedRecord
	ExperimentID string           `json:"experiment_id"`
	Case         int              `json:"case"`
	Run          int              `json:"run"`
	Seed         int64            `json:"seed"`
	N            int              `json:"n"`
	K            int              `json:"k"`
	Innovators   int              `json:"innovators"`
	Providers    int              `json:"providers"`
	Results      []StrategyResult `json:"results"`
}

// Stream names one output log: the experiment, the case and the log file
// name the coordinator derived.
type Stream struct {
	ExperimentID string `json:"experiment_id"`
	Case         int    `json:"case"`
	Name         string `json:"name"`
}

func (s Stream) String() string {
	return fmt.Sprintf("%s/case-%d/%s", s.ExperimentID, s.Case, s.Name)
}
