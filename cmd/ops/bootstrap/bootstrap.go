package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// secretSpec maps a config variable to its SSM location. The services read
// it back through the matching <EnvVar>_SSM_PARAM pointer.
type secretSpec struct {
	EnvVar string
	Key    string
}

// vendorSecrets are copied from the operator's environment when present.
var vendorSecrets = []secretSpec{
	{EnvVar: "DATABASE_URL", Key: "database/url"},
	{EnvVar: "TWILIO_AUTH_TOKEN", Key: "twilio/auth_token"},
	{EnvVar: "SENDGRID_API_KEY", Key: "sendgrid/api_key"},
	{EnvVar: "REDIS_PASSWORD", Key: "redis/password"},
}

var staffKeySecret = secretSpec{EnvVar: "STAFF_API_KEY_HASH", Key: "security/staff_api_key_hash"}

// Options controls a single seeding run.
type Options struct {
	Overwrite      bool
	RotateStaffKey bool
	BcryptCost     int
}

// Outcome records what happened to one parameter.
type Outcome struct {
	EnvVar string
	Path   string
	Action string // written, exists, skipped
}

// Seeder pushes amberline secrets into SSM Parameter Store.
type Seeder struct {
	ssm    *SSMManager
	lookup func(string) (string, bool)
	logger *slog.Logger
}

func NewSeeder(m *SSMManager, lookup func(string) (string, bool), logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{ssm: m, lookup: lookup, logger: logger}
}

// Run seeds vendor secrets and the staff key hash. When a new staff key is
// generated its plaintext is returned so the caller can show it once.
func (s *Seeder) Run(ctx context.Context, opts Options) ([]Outcome, string, error) {
	var outcomes []Outcome

	for _, spec := range vendorSecrets {
		path := s.ssm.SSMPath(spec.Key)
		exists, err := s.ssm.ParameterExists(ctx, path)
		if err != nil {
			return outcomes, "", err
		}
		if exists && !opts.Overwrite {
			outcomes = append(outcomes, Outcome{EnvVar: spec.EnvVar, Path: path, Action: "exists"})
			continue
		}

		value, ok := s.lookup(spec.EnvVar)
		if !ok || value == "" {
			s.logger.Warn("secret not provided, skipping", "env_var", spec.EnvVar)
			action := "skipped"
			if exists {
				action = "exists"
			}
			outcomes = append(outcomes, Outcome{EnvVar: spec.EnvVar, Path: path, Action: action})
			continue
		}
		if err := s.ssm.PutSecret(ctx, path, value, exists); err != nil {
			return outcomes, "", err
		}
		outcomes = append(outcomes, Outcome{EnvVar: spec.EnvVar, Path: path, Action: "written"})
	}

	path := s.ssm.SSMPath(staffKeySecret.Key)
	exists, err := s.ssm.ParameterExists(ctx, path)
	if err != nil {
		return outcomes, "", err
	}
	if exists && !opts.RotateStaffKey {
		outcomes = append(outcomes, Outcome{EnvVar: staffKeySecret.EnvVar, Path: path, Action: "exists"})
		return outcomes, "", nil
	}

	key, hash, err := GenerateStaffKey(opts.BcryptCost)
	if err != nil {
		return outcomes, "", err
	}
	if err := s.ssm.PutSecret(ctx, path, hash, exists); err != nil {
		return outcomes, "", err
	}
	outcomes = append(outcomes, Outcome{EnvVar: staffKeySecret.EnvVar, Path: path, Action: "written"})
	return outcomes, key, nil
}

// WriteEnvPointers prints KEY_SSM_PARAM=path lines for every parameter that
// is present in SSM, ready to paste into a service environment.
func WriteEnvPointers(w io.Writer, outcomes []Outcome) error {
	sorted := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Action != "skipped" {
			sorted = append(sorted, o)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EnvVar < sorted[j].EnvVar })

	for _, o := range sorted {
		if _, err := fmt.Fprintf(w, "%s_SSM_PARAM=%s\n", o.EnvVar, o.Path); err != nil {
			return err
		}
	}
	return nil
}
