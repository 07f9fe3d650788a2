package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/password"
	"github.com/eventlyze/authflow/store/postgres"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewUserCmd creates the user administration commands.
func NewUserCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCmd(flags))
	cmd.AddCommand(newUserStatusCmd(flags))
	return cmd
}

func newUserAddCmd(flags *globalFlags) *cobra.Command {
	var (
		email      string
		role       string
		mustChange bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account; the password is read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			pw, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			hasher, err := newHasher(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return oops.Code("PASSWORD_REJECTED").Wrap(err)
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			user, err := postgres.NewUserStore(pool).CreateUser(ctx, postgres.NewUser{
				Email:              email,
				PasswordHash:       hash,
				Role:               role,
				NeedPasswordChange: mustChange,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.UserID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&role, "role", "member", "role claim")
	cmd.Flags().BoolVar(&mustChange, "must-change-password", false, "flag the account for a password change")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUserStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id> <active|disabled|locked>",
		Short: "Change an account status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			cfg, err := LoadConfig(flags.configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			return postgres.NewUserStore(pool).SetStatus(ctx, args[0], status)
		},
	}
}

func parseStatus(s string) (authflow.AccountStatus, error) {
	for _, st := range []authflow.AccountStatus{authflow.AccountActive, authflow.AccountDisabled, authflow.AccountLocked} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, oops.Code("INVALID_ARGUMENT").Errorf("unknown status %q", s)
}

// readPassword takes the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INVALID_ARGUMENT").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("INVALID_ARGUMENT").Errorf("password expected on stdin")
	}
	return line, nil
}

func newHasher(cfg *Config) (*password.Argon2, error) {
	pc := password.DefaultConfig()
	pc.Memory = cfg.Password.Memory
	pc.Time = cfg.Password.Time
	pc.Parallelism = cfg.Password.Parallelism
	pc.MinPasswordBytes = cfg.Password.MinLength
	h, err := password.NewArgon2(pc)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return h, nil
}
