package rules

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robby/boardsync/internal/domain"
)

// MonitoredUserStatic is the only supported monitored-user config type.
// The original dynamic lookup types were never reliable and are rejected.
const MonitoredUserStatic = "static"

// ProjectRef locates the target board. Exactly one of ID or URL or
// (Org, Number) must be usable; ID wins when several are set.
type ProjectRef struct {
	ID     string `yaml:"id,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Org    string `yaml:"org,omitempty"`
	Number int    `yaml:"number,omitempty"`
}

// MonitoredUser is the rule-file monitored-user block.
type MonitoredUser struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Config is a loaded, validated rule file. Rules that failed validation
// are absent from Groups and recorded in Warnings.
type Config struct {
	Project       ProjectRef
	MonitoredUser string // empty when unset or rejected
	Repos         []string
	Groups        map[Group][]Rule
	Warnings      []error
}

// Scope builds the run scope. userOverride, when non-empty, takes
// precedence over the rule file's monitored user.
func (c *Config) Scope(userOverride string) domain.Scope {
	user := c.MonitoredUser
	if userOverride != "" {
		user = userOverride
	}
	return domain.Scope{
		MonitoredUser:  user,
		MonitoredRepos: c.Repos,
		Organization:   c.Project.Org,
	}
}

// Raw YAML shapes. Predicate and action kinds arrive as strings and are
// parsed into the closed enums during validation.

type fileYAML struct {
	Project   ProjectRef    `yaml:"project"`
	Monitored monitoredYAML `yaml:"monitored"`
	Rules     groupsYAML    `yaml:"rules"`
}

type monitoredYAML struct {
	User  *MonitoredUser `yaml:"user,omitempty"`
	Repos []string       `yaml:"repos,omitempty"`
}

type groupsYAML struct {
	BoardItems   []ruleYAML `yaml:"board_items"`
	Columns      []ruleYAML `yaml:"columns"`
	Sprints      []ruleYAML `yaml:"sprints"`
	Assignees    []ruleYAML `yaml:"assignees"`
	LinkedIssues []ruleYAML `yaml:"linked_issues"`
}

type ruleYAML struct {
	Name      string         `yaml:"name"`
	AppliesTo []string       `yaml:"applies_to"`
	Trigger   predicateYAML  `yaml:"trigger"`
	SkipIf    *predicateYAML `yaml:"skip_if,omitempty"`
	Actions   []actionYAML   `yaml:"actions"`
}

type predicateYAML struct {
	Kind   string   `yaml:"kind"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

type actionYAML struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value,omitempty"`
}

// Load reads and validates a rule file. A file that cannot be parsed, or
// that lacks the required board_items group, fails the load; an invalid
// individual rule is dropped and recorded as a warning on the Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return Parse(data)
}

// Parse validates rule-file bytes. See Load.
func Parse(data []byte) (*Config, error) {
	var raw fileYAML
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	cfg := &Config{
		Project: raw.Project,
		Repos:   raw.Monitored.Repos,
		Groups:  make(map[Group][]Rule, len(GroupOrder)),
	}

	if err := cfg.Project.Normalize(); err != nil {
		return nil, err
	}

	if raw.Monitored.User != nil {
		if raw.Monitored.User.Type == MonitoredUserStatic {
			cfg.MonitoredUser = raw.Monitored.User.Value
		} else {
			// Dynamic lookups are rejected, not silently accepted; the
			// user-scoped rules simply will not match this run.
			cfg.Warnings = append(cfg.Warnings, &ConfigError{
				Code: ErrCodeBadMonitoredUser,
				Message: fmt.Sprintf("monitored user type %q is not supported, only %q; user-scoped rules disabled",
					raw.Monitored.User.Type, MonitoredUserStatic),
			})
		}
	}

	if len(raw.Rules.BoardItems) == 0 {
		return nil, &ConfigError{
			Code:    ErrCodeMissingSection,
			Message: "rule file has no board_items rules",
		}
	}

	for group, rawRules := range map[Group][]ruleYAML{
		GroupBoardItems:   raw.Rules.BoardItems,
		GroupColumns:      raw.Rules.Columns,
		GroupSprints:      raw.Rules.Sprints,
		GroupAssignees:    raw.Rules.Assignees,
		GroupLinkedIssues: raw.Rules.LinkedIssues,
	} {
		for _, rawRule := range rawRules {
			rule, err := buildRule(rawRule)
			if err != nil {
				cfg.Warnings = append(cfg.Warnings, err)
				continue
			}
			cfg.Groups[group] = append(cfg.Groups[group], rule)
		}
	}

	return cfg, nil
}

// Normalize fills Org and Number from a project URL of the form
// https://github.com/orgs/<org>/projects/<number> when no explicit id is
// given.
func (ref *ProjectRef) Normalize() error {
	if ref.ID != "" || (ref.Org != "" && ref.Number != 0) {
		return nil
	}
	if ref.URL == "" {
		return &ConfigError{
			Code:    ErrCodeMissingSection,
			Message: "project requires id, url, or org+number",
		}
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(ref.URL, "https://"), "/")
	parts := strings.Split(trimmed, "/")
	// github.com/orgs/<org>/projects/<number>
	if len(parts) != 5 || parts[0] != "github.com" || parts[1] != "orgs" || parts[3] != "projects" {
		return &ConfigError{
			Code:    ErrCodeMissingSection,
			Message: fmt.Sprintf("cannot parse project url %q", ref.URL),
		}
	}
	number, err := strconv.Atoi(parts[4])
	if err != nil {
		return &ConfigError{
			Code:    ErrCodeMissingSection,
			Message: fmt.Sprintf("cannot parse project number in url %q", ref.URL),
		}
	}

	ref.Org = parts[2]
	ref.Number = number
	return nil
}

// buildRule converts one raw rule into its typed form, rejecting unknown
// kinds.
func buildRule(raw ruleYAML) (Rule, error) {
	rule := Rule{Name: raw.Name}

	for _, kind := range raw.AppliesTo {
		switch kind {
		case string(domain.KindIssue):
			rule.AppliesTo = append(rule.AppliesTo, domain.KindIssue)
		case string(domain.KindPullRequest):
			rule.AppliesTo = append(rule.AppliesTo, domain.KindPullRequest)
		default:
			return Rule{}, &ConfigError{
				Code:    ErrCodeUnknownPredicate,
				Message: fmt.Sprintf("unknown item kind %q in applies_to", kind),
				Rule:    raw.Name,
			}
		}
	}

	trigger, err := buildPredicate(raw.Trigger, raw.Name)
	if err != nil {
		return Rule{}, err
	}
	rule.Trigger = trigger

	if raw.SkipIf != nil {
		skip, err := buildPredicate(*raw.SkipIf, raw.Name)
		if err != nil {
			return Rule{}, err
		}
		rule.SkipIf = &skip
	}

	if len(raw.Actions) == 0 {
		return Rule{}, &ConfigError{
			Code:    ErrCodeUnknownAction,
			Message: "rule has no actions",
			Rule:    raw.Name,
		}
	}
	for _, rawAction := range raw.Actions {
		action, err := buildAction(rawAction, raw.Name)
		if err != nil {
			return Rule{}, err
		}
		rule.Actions = append(rule.Actions, action)
	}

	return rule, nil
}

func buildPredicate(raw predicateYAML, ruleName string) (Predicate, error) {
	switch PredicateKind(raw.Kind) {
	case AuthorIsMonitoredUser, AssigneeIsMonitoredUser, RepoIsMonitored,
		ColumnIsUnset, ColumnEquals, ColumnIn, SprintIsCurrent,
		AlreadyInProject, PRClosedNotMerged, PROpenOrMerged,
		InheritanceSatisfied:
		return Predicate{
			Kind:   PredicateKind(raw.Kind),
			Value:  raw.Value,
			Values: raw.Values,
		}, nil
	default:
		return Predicate{}, &ConfigError{
			Code:    ErrCodeUnknownPredicate,
			Message: fmt.Sprintf("unknown predicate kind %q", raw.Kind),
			Rule:    ruleName,
		}
	}
}

func buildAction(raw actionYAML, ruleName string) (Action, error) {
	switch ActionKind(raw.Kind) {
	case AddToBoard, SetColumn, SetSprint, SetAssignee,
		InheritColumn, InheritAssignees:
		return Action{Kind: ActionKind(raw.Kind), Value: raw.Value}, nil
	default:
		return Action{}, &ConfigError{
			Code:    ErrCodeUnknownAction,
			Message: fmt.Sprintf("unknown action kind %q", raw.Kind),
			Rule:    ruleName,
		}
	}
}
