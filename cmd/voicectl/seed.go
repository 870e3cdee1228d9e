package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"voice-auth/internal/rbac"
	"voice-auth/internal/security"
	"voice-auth/internal/store"
	"voice-auth/internal/voice"
	"voice-auth/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the document read by "voicectl seed".
type seedFile struct {
	Phrases []string   `yaml:"phrases"`
	Admin   *seedAdmin `yaml:"admin"`
}

type seedAdmin struct {
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
	// PasswordEnv names the variable holding the password. The password
	// itself never appears in the file.
	PasswordEnv string `yaml:"password_env"`
}

type seedStore interface {
	AddPhrase(ctx context.Context, text string) (voice.Phrase, error)
	FindIdentityByUsername(ctx context.Context, username string) (voice.Identity, error)
	CreateIdentity(ctx context.Context, in voice.Identity) (voice.Identity, error)
}

type seedReport struct {
	Phrases      []voice.Phrase
	AdminCreated bool
}

var (
	seedPath       string
	seedBcryptCost int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load challenge phrases and a bootstrap admin",
	Long: `Load challenge phrases and a bootstrap admin.

Seeding is idempotent: existing phrases are kept and an existing admin is
left untouched.

Example seed file:
  phrases:
    - My voice is my password
    - Open sesame
  admin:
    username: admin
    role: admin
    password_env: VOICE_ADMIN_PASSWORD`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(seedPath)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		sf, err := parseSeed(raw)
		if err != nil {
			return err
		}

		dsn, err := resolveDatabaseURL()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{MaxOpenConns: 2})
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := applySeed(ctx, store.NewPostgres(db), security.NewHasher(seedBcryptCost), sf, os.Getenv)
		if err != nil {
			return err
		}
		for _, p := range rep.Phrases {
			printf(cmd, "phrase %d: %s\n", p.ID, p.Text)
		}
		if rep.AdminCreated {
			printf(cmd, "admin %q created\n", sf.Admin.Username)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedPath, "file", "f", "configs/seed.yaml", "seed file")
	seedCmd.Flags().IntVar(&seedBcryptCost, "bcrypt-cost", 12, "bcrypt cost for the admin password")
}

func parseSeed(raw []byte) (seedFile, error) {
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	for i, p := range sf.Phrases {
		sf.Phrases[i] = strings.TrimSpace(p)
		if sf.Phrases[i] == "" {
			return seedFile{}, fmt.Errorf("seed file: phrase %d is empty", i)
		}
	}
	if a := sf.Admin; a != nil {
		if a.Username == "" || a.PasswordEnv == "" {
			return seedFile{}, errors.New("seed file: admin needs username and password_env")
		}
		if a.Role == "" {
			a.Role = voice.RoleAdmin
		}
		if !rbac.IsKnownRole(a.Role) {
			return seedFile{}, fmt.Errorf("seed file: unknown role %q", a.Role)
		}
	}
	return sf, nil
}

func applySeed(ctx context.Context, st seedStore, hasher *security.Hasher, sf seedFile, getenv func(string) string) (seedReport, error) {
	var rep seedReport
	for _, text := range sf.Phrases {
		p, err := st.AddPhrase(ctx, text)
		if err != nil {
			return rep, fmt.Errorf("add phrase %q: %w", text, err)
		}
		rep.Phrases = append(rep.Phrases, p)
	}

	a := sf.Admin
	if a == nil {
		return rep, nil
	}
	if _, err := st.FindIdentityByUsername(ctx, a.Username); err == nil {
		return rep, nil
	} else if !errors.Is(err, voice.ErrNotFound) {
		return rep, err
	}

	password := getenv(a.PasswordEnv)
	if password == "" {
		return rep, fmt.Errorf("%s is empty; cannot create admin %q", a.PasswordEnv, a.Username)
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return rep, err
	}
	if _, err := st.CreateIdentity(ctx, voice.Identity{Username: a.Username, PasswordHash: hash, Role: a.Role}); err != nil {
		return rep, fmt.Errorf("create admin: %w", err)
	}
	rep.AdminCreated = true
	return rep, nil
}
