package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
	"gopkg.in/yaml.v3"
)

// Default super admin created on an empty installation.
const (
	defaultAdminUsername = "superadmin"
	defaultAdminEmail    = "admin@tailingsiq.com"
	defaultAdminPassword = "ChangeMe123!"
)

type SeedData struct {
	Users []User `yaml:"users"`
}

type User struct {
	Username      string   `yaml:"username"`
	Email         string   `yaml:"email"`
	Password      string   `yaml:"password"`
	FirstName     string   `yaml:"first_name"`
	LastName      string   `yaml:"last_name"`
	Role          string   `yaml:"role"`
	Status        string   `yaml:"status"`
	Organization  string   `yaml:"organization"`
	Position      string   `yaml:"position"`
	Phone         string   `yaml:"phone"`
	LicenseNumber string   `yaml:"license_number"`
	Facilities    []string `yaml:"facilities_access"`
}

// seedStore is the part of store.Queries the seeder writes through.
type seedStore interface {
	CountUsersByRole(ctx context.Context, role string) (int64, error)
	CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error)
}

func resolveFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, errors.New("must specify either --file or --dir")
	}

	if file != "" && dir != "" {
		return nil, errors.New("cannot specify both --file and --dir")
	}

	if file != "" {
		return []string{file}, nil
	}

	return findYAMLFiles(dir)
}

func findYAMLFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isYAMLFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files found in directory: %s", dir)
	}

	return files, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadSeedData(files []string) (*SeedData, error) {
	combined := &SeedData{}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file, err)
		}

		var fileData SeedData
		if err := yaml.Unmarshal(data, &fileData); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", file, err)
		}

		combined.Users = append(combined.Users, fileData.Users...)
	}

	return combined, nil
}

// validateSeedData checks every user before anything is written.
func validateSeedData(data *SeedData) error {
	var problems []string
	seen := make(map[string]bool)

	for i, u := range data.Users {
		where := fmt.Sprintf("users[%d] (%s)", i, u.Username)
		if u.Username == "" {
			problems = append(problems, where+": username is required")
		}
		if seen[strings.ToLower(u.Username)] {
			problems = append(problems, where+": duplicate username")
		}
		seen[strings.ToLower(u.Username)] = true
		if !strings.Contains(u.Email, "@") {
			problems = append(problems, where+": email is invalid")
		}
		if !rbac.IsValidRole(rbac.Role(u.Role)) {
			problems = append(problems, where+": unknown role "+u.Role)
		}
		if u.Status != "" && !models.Status(u.Status).Valid() {
			problems = append(problems, where+": unknown status "+u.Status)
		}
		if err := models.DefaultPasswordPolicy.Validate(u.Password); err != nil {
			problems = append(problems, where+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed data:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// ensureSuperAdmin creates the default super admin when the installation
// has none.
func ensureSuperAdmin(ctx context.Context, q seedStore, out io.Writer) error {
	n, err := q.CountUsersByRole(ctx, string(rbac.RoleSuperAdmin))
	if err != nil {
		return fmt.Errorf("failed to count super admins: %w", err)
	}
	if n > 0 {
		fmt.Fprintln(out, "super admin already exists, skipping bootstrap")
		return nil
	}

	hash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		return err
	}
	_, err = q.CreateUser(ctx, store.CreateUserParams{
		Username:     defaultAdminUsername,
		Email:        defaultAdminEmail,
		PasswordHash: hash,
		FirstName:    "Super",
		LastName:     "Admin",
		Role:         string(rbac.RoleSuperAdmin),
		Status:       string(models.StatusActive),
		Organization: store.Text("TailingsIQ"),
		Position:     store.Text("System Administrator"),
	})
	if err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	fmt.Fprintf(out, "created super admin %q with the default password; change it after first login\n", defaultAdminUsername)
	return nil
}

func applySeedData(ctx context.Context, q seedStore, data *SeedData, out io.Writer) error {
	for _, u := range data.Users {
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", u.Username, err)
		}

		status := u.Status
		if status == "" {
			status = string(models.StatusActive)
		}

		_, err = q.CreateUser(ctx, store.CreateUserParams{
			Username:         u.Username,
			Email:            strings.ToLower(u.Email),
			PasswordHash:     hash,
			FirstName:        u.FirstName,
			LastName:         u.LastName,
			Role:             u.Role,
			Status:           status,
			Organization:     store.Text(u.Organization),
			Position:         store.Text(u.Position),
			Phone:            store.Text(u.Phone),
			LicenseNumber:    store.Text(u.LicenseNumber),
			FacilitiesAccess: u.Facilities,
		})
		if err != nil {
			if _, dup := store.UniqueViolation(err); dup {
				fmt.Fprintf(out, "user %s already exists, skipping\n", u.Username)
				continue
			}
			return fmt.Errorf("failed to create user %s: %w", u.Username, err)
		}
		fmt.Fprintf(out, "created user: %s (%s)\n", u.Username, u.Role)
	}

	fmt.Fprintln(out, "seeding completed")
	return nil
}
