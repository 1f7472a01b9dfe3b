package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/tailingsiq/tailingsiq/internal/guard"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/session"
	"golang.org/x/term"
)

var (
	errNotSignedIn      = errors.New("not signed in; run `tiq login` first")
	errPermissionDenied = errors.New("your role does not allow this command")
)

type cli struct {
	manager *session.Manager
	in      *bufio.Reader
	out     io.Writer
	// readSecret reads a line without echo; nil when input is not a terminal
	readSecret func() ([]byte, error)
}

func newCLI(opts session.Options, in io.Reader, out io.Writer) (*cli, error) {
	m, err := session.NewManager(opts)
	if err != nil {
		return nil, err
	}
	c := &cli{
		manager: m,
		in:      bufio.NewReader(in),
		out:     out,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.readSecret = func() ([]byte, error) { return term.ReadPassword(int(f.Fd())) }
	}
	return c, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.usage()
		return errors.New("command required")
	}

	if err := c.manager.Initialize(ctx); err != nil {
		fmt.Fprintln(c.out, "warning:", err)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami()
	case "perms":
		return c.perms()
	case "refresh":
		return c.refresh(ctx)
	case "profile":
		return c.profile(ctx, rest)
	case "passwd":
		return c.passwd(ctx)
	case "forgot":
		return c.forgot(ctx, rest)
	case "reset":
		return c.reset(ctx, rest)
	case "users":
		return c.users(ctx, rest)
	case "help", "--help", "-h":
		c.usage()
		return nil
	default:
		c.usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// require gates a command the way the page guard gates a route. The
// returned snapshot is the one that was judged; commands read the user and
// evaluator from it.
func (c *cli) require(perm rbac.Permission) (session.Snapshot, error) {
	s := c.manager.Snapshot()
	switch guard.Decide(s, perm) {
	case guard.RedirectLogin:
		return s, errNotSignedIn
	case guard.RedirectDashboard:
		return s, errPermissionDenied
	}
	return s, nil
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret prompts for a password, without echo when reading from a terminal.
func (c *cli) secret(label string) (string, error) {
	if c.readSecret == nil {
		return c.prompt(label)
	}
	fmt.Fprint(c.out, label)
	b, err := c.readSecret()
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return string(b), nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "Username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if c.manager.Snapshot().Authenticated() {
		return fmt.Errorf("already signed in as %s; run `tiq logout` first", c.manager.CurrentUser().Username)
	}

	var err error
	if *username == "" {
		if *username, err = c.prompt("Username: "); err != nil {
			return err
		}
	}
	password, err := c.secret("Password: ")
	if err != nil {
		return err
	}

	if err := c.manager.Login(ctx, *username, password); err != nil {
		return err
	}

	u := c.manager.CurrentUser()
	fmt.Fprintf(c.out, "Signed in as %s (%s)\n", u.Username, rbac.RoleDisplayName(u.Role))
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	if !c.manager.Snapshot().Authenticated() {
		fmt.Fprintln(c.out, "Not signed in")
		return nil
	}
	if err := c.manager.Logout(ctx); err != nil {
		fmt.Fprintln(c.out, "warning: server did not confirm logout:", err)
	}
	fmt.Fprintln(c.out, "Signed out")
	return nil
}

func (c *cli) whoami() error {
	s, err := c.require("")
	if err != nil {
		return err
	}
	u, e := s.User, s.Evaluator()

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", u.Username)
	fmt.Fprintf(w, "Name:\t%s\n", u.FullName())
	fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	fmt.Fprintf(w, "Role:\t%s (level %d)\n", e.RoleDisplayName(), e.Level())
	if u.Organization != "" {
		fmt.Fprintf(w, "Organization:\t%s\n", u.Organization)
	}
	fmt.Fprintf(w, "Facilities:\t%s\n", facilitiesLabel(u.FacilitiesAccess))
	return w.Flush()
}

func facilitiesLabel(ids []string) string {
	switch {
	case ids == nil:
		return "all"
	case len(ids) == 0:
		return "none"
	}
	return strings.Join(ids, ", ")
}

func (c *cli) perms() error {
	s, err := c.require("")
	if err != nil {
		return err
	}
	e := s.Evaluator()

	fmt.Fprintf(c.out, "Permissions for %s:\n", e.RoleDisplayName())
	for _, p := range e.GrantedPermissions() {
		fmt.Fprintf(c.out, "  %s\n", p)
	}
	fmt.Fprintln(c.out, "Assignable roles:")
	for _, r := range e.AvailableRoles() {
		fmt.Fprintf(c.out, "  %-20s %s\n", r.Role, r.DisplayName)
	}
	return nil
}

func (c *cli) refresh(ctx context.Context) error {
	if _, err := c.require(""); err != nil {
		return err
	}
	if err := c.manager.RefreshToken(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Token refreshed")
	return nil
}

func (c *cli) profile(ctx context.Context, args []string) error {
	if _, err := c.require(""); err != nil {
		return err
	}

	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	var update models.ProfileUpdate
	stringFlag(fs, &update.Email, "email", "Email address")
	stringFlag(fs, &update.FirstName, "first-name", "First name")
	stringFlag(fs, &update.LastName, "last-name", "Last name")
	stringFlag(fs, &update.Organization, "organization", "Organization")
	stringFlag(fs, &update.Position, "position", "Position")
	stringFlag(fs, &update.Phone, "phone", "Phone")
	stringFlag(fs, &update.LicenseNumber, "license", "Professional license number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := c.manager.UpdateProfile(ctx, update); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Profile updated")
	return c.whoami()
}

// stringFlag sets *dst only when the flag is given, so absent flags stay nil.
func stringFlag(fs *flag.FlagSet, dst **string, name, usage string) {
	fs.Func(name, usage, func(v string) error {
		*dst = &v
		return nil
	})
}

func (c *cli) passwd(ctx context.Context) error {
	if _, err := c.require(""); err != nil {
		return err
	}
	current, err := c.secret("Current password: ")
	if err != nil {
		return err
	}
	next, err := c.secret("New password: ")
	if err != nil {
		return err
	}
	confirm, err := c.secret("Confirm new password: ")
	if err != nil {
		return err
	}
	if next != confirm {
		return errors.New("passwords do not match")
	}

	if err := c.manager.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Password changed")
	return nil
}

func (c *cli) forgot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("forgot", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.manager.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "If the email exists, a password reset link has been sent")
	return nil
}

func (c *cli) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	token := fs.String("token", "", "Token from the reset email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	next, err := c.secret("New password: ")
	if err != nil {
		return err
	}
	if err := c.manager.ResetPassword(ctx, *token, next); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Password reset; you can now sign in")
	return nil
}

func (c *cli) users(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("users: subcommand required (list, get, create, set-role, deactivate, delete, reset-password)")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		return c.listUsers(ctx, rest)
	case "get":
		return c.withUserID(rest, rbac.CanManageUsers, func(_ session.Snapshot, id int64) error {
			u, err := c.manager.Client().GetUser(ctx, id)
			if err != nil {
				return err
			}
			c.printUsers([]models.User{*u})
			return nil
		})
	case "create":
		return c.createUser(ctx, rest)
	case "set-role":
		if len(rest) != 2 {
			return errors.New("usage: tiq users set-role <id> <role>")
		}
		role := rbac.Role(rest[1])
		return c.withUserID(rest[:1], rbac.CanManageUsers, func(s session.Snapshot, id int64) error {
			if !s.Evaluator().CanAssignRole(role) {
				return fmt.Errorf("cannot assign role %q", role)
			}
			u, err := c.manager.Client().UpdateUser(ctx, id, models.UserUpdate{Role: &role})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s is now %s\n", u.Username, rbac.RoleDisplayName(u.Role))
			return nil
		})
	case "deactivate":
		return c.withUserID(rest, rbac.CanManageUsers, func(_ session.Snapshot, id int64) error {
			status := models.StatusInactive
			u, err := c.manager.Client().UpdateUser(ctx, id, models.UserUpdate{Status: &status})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s deactivated\n", u.Username)
			return nil
		})
	case "delete":
		return c.withUserID(rest, rbac.CanDeleteUsers, func(_ session.Snapshot, id int64) error {
			if err := c.manager.Client().DeleteUser(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "User %d deleted\n", id)
			return nil
		})
	case "reset-password":
		return c.withUserID(rest, rbac.CanManageUsers, func(_ session.Snapshot, id int64) error {
			temp, err := c.manager.Client().ResetUserPassword(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Temporary password: %s\n", temp)
			return nil
		})
	default:
		return fmt.Errorf("users: unknown subcommand %s", sub)
	}
}

func (c *cli) withUserID(args []string, perm rbac.Permission, fn func(s session.Snapshot, id int64) error) error {
	s, err := c.require(perm)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("a single user id is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	return fn(s, id)
}

func (c *cli) listUsers(ctx context.Context, args []string) error {
	if _, err := c.require(rbac.CanAccessAdminPanel); err != nil {
		return err
	}

	fs := flag.NewFlagSet("users list", flag.ContinueOnError)
	role := fs.String("role", "", "Filter by role")
	status := fs.String("status", "", "Filter by status")
	org := fs.String("organization", "", "Filter by organization")
	limit := fs.Int("limit", 0, "Maximum rows")
	offset := fs.Int("offset", 0, "Rows to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	users, err := c.manager.Client().ListUsers(ctx, models.UserFilter{
		Role:         rbac.Role(*role),
		Status:       models.Status(*status),
		Organization: *org,
		Limit:        *limit,
		Offset:       *offset,
	})
	if err != nil {
		return err
	}
	c.printUsers(users)
	return nil
}

func (c *cli) createUser(ctx context.Context, args []string) error {
	s, err := c.require(rbac.CanManageUsers)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("users create", flag.ContinueOnError)
	var in models.UserCreate
	fs.StringVar(&in.Username, "username", "", "Username")
	fs.StringVar(&in.Email, "email", "", "Email")
	fs.StringVar(&in.FirstName, "first-name", "", "First name")
	fs.StringVar(&in.LastName, "last-name", "", "Last name")
	role := fs.String("role", string(rbac.RoleViewer), "Role")
	fs.StringVar(&in.Organization, "organization", "", "Organization")
	fs.StringVar(&in.Position, "position", "", "Position")
	facilities := fs.String("facilities", "", "Comma separated facility ids; empty means all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Role = rbac.Role(*role)
	if *facilities != "" {
		in.FacilitiesAccess = strings.Split(*facilities, ",")
	}

	if !s.Evaluator().CanAssignRole(in.Role) {
		return fmt.Errorf("cannot create a user with role %q", in.Role)
	}

	password, err := c.secret("Initial password: ")
	if err != nil {
		return err
	}
	in.Password = password

	u, err := c.manager.Client().CreateUser(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Created user %s (id %d)\n", u.Username, u.ID)
	return nil
}

func (c *cli) printUsers(users []models.User) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tROLE\tSTATUS\tFACILITIES")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Username, u.FullName(), u.Role, u.Status, facilitiesLabel(u.FacilitiesAccess))
	}
	w.Flush()
}

func (c *cli) usage() {
	fmt.Fprintln(c.out, "tiq - TailingsIQ command line client")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "USAGE:")
	fmt.Fprintln(c.out, "  tiq <command> [flags]")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "COMMANDS:")
	fmt.Fprintln(c.out, "  login [-u user]        Sign in and remember the session")
	fmt.Fprintln(c.out, "  logout                 Sign out and revoke the token")
	fmt.Fprintln(c.out, "  whoami                 Show the signed-in user")
	fmt.Fprintln(c.out, "  perms                  Show your permissions and assignable roles")
	fmt.Fprintln(c.out, "  refresh                Swap the token for a fresh one")
	fmt.Fprintln(c.out, "  profile [flags]        Update your contact details")
	fmt.Fprintln(c.out, "  passwd                 Change your password")
	fmt.Fprintln(c.out, "  forgot -email addr     Request a password reset email")
	fmt.Fprintln(c.out, "  reset -token t         Set a new password with a reset token")
	fmt.Fprintln(c.out, "  users <subcommand>     Administer accounts (list, get, create, set-role,")
	fmt.Fprintln(c.out, "                         deactivate, delete, reset-password)")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "ENVIRONMENT:")
	fmt.Fprintln(c.out, "  TIQ_API_URL            API root (default http://localhost:8000/api/v1)")
	fmt.Fprintln(c.out, "  TIQ_SESSION_FILE       Where the session token is kept")
}
