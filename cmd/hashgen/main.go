package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/database"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

var (
	createPtr = flag.String("create", "", "Create a user with this username instead of printing the hash")
	emailPtr  = flag.String("email", "", "Email for -create")
	rolePtr   = flag.String("role", string(rbac.RoleViewer), "Role for -create")
	forcePtr  = flag.Bool("force", false, "Skip the password policy check")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-create username -email addr -role role] <password>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s -create eor.smith -email eor@example.com -role engineer_of_record 'Dam!Safety1'\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	password := flag.Arg(0)

	if !*forcePtr {
		if err := models.DefaultPasswordPolicy.Validate(password); err != nil {
			fmt.Fprintf(os.Stderr, "%v (use -force to hash anyway)\n", err)
			os.Exit(1)
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating hash: %v\n", err)
		os.Exit(1)
	}

	if *createPtr == "" {
		fmt.Println(hash)
		return
	}

	role := rbac.Role(*rolePtr)
	if !rbac.IsValidRole(role) {
		fmt.Fprintf(os.Stderr, "Unknown role %q\n", *rolePtr)
		os.Exit(1)
	}
	if !strings.Contains(*emailPtr, "@") {
		fmt.Fprintln(os.Stderr, "-email is required with -create")
		os.Exit(1)
	}

	cfg := config.Load()
	db, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	user, err := db.Queries().CreateUser(context.Background(), store.CreateUserParams{
		Username:     *createPtr,
		Email:        strings.ToLower(*emailPtr),
		PasswordHash: hash,
		Role:         string(role),
		Status:       string(models.StatusActive),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User created successfully: %s (%s)\n", user.Username, user.Role)
}
