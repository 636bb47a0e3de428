// Package console is the operator's numbered menu. It blocks on the
// operator while an event session is open; scans are served by the listener
// in the background.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"attendance_service/internal/attendance"
	"attendance_service/internal/roster"
)

// Prompter reads one line of operator input. io.EOF ends the console.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

type Roster interface {
	Register(id, displayName string) (roster.Profile, error)
	List() []roster.Profile
}

type Records interface {
	ReadEvent(eventName string) (string, error)
	ReadAll() (string, error)
}

type Session interface {
	Open(name string) error
	Close(ctx context.Context) (string, error)
}

type Console struct {
	In      Prompter
	Out     io.Writer
	Roster  Roster
	Records Records
	Session Session
	Events  []string
	// ScanURL is shown to the operator once a session is open.
	ScanURL         func() string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	heading lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
}

const rule = 50

// Run shows the main menu until the operator exits or input ends.
func (c *Console) Run(ctx context.Context) error {
	c.setup()
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.mainMenu()
		choice, err := c.In.Prompt(fmt.Sprintf("Enter your choice (1-%d): ", c.exitChoice()))
		if errors.Is(err, io.EOF) {
			c.println("Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		n, err := strconv.Atoi(strings.TrimSpace(choice))
		switch {
		case err != nil || n < 1 || n > c.exitChoice():
			c.println(c.warn.Render("Invalid choice! Please try again."))
		case n == 1:
			c.listUsers()
		case n <= 1+len(c.Events):
			if err := c.runEvent(ctx, c.Events[n-2]); err != nil {
				return err
			}
		case n == c.exitChoice()-2:
			if err := c.register(); err != nil {
				return err
			}
		case n == c.exitChoice()-1:
			if err := c.viewRecords(); err != nil {
				return err
			}
		default:
			c.println("Goodbye!")
			return nil
		}
	}
}

func (c *Console) setup() {
	r := lipgloss.NewRenderer(c.Out)
	c.heading = r.NewStyle().Bold(true)
	c.ok = r.NewStyle().Foreground(lipgloss.Color("2"))
	c.warn = r.NewStyle().Foreground(lipgloss.Color("1"))
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Menu layout: users, one entry per event, register, records, exit.
func (c *Console) exitChoice() int {
	return len(c.Events) + 4
}

func (c *Console) mainMenu() {
	c.println("")
	c.println(strings.Repeat("=", rule))
	c.println(c.heading.Render("        ATTENDANCE MONITORING SYSTEM"))
	c.println(strings.Repeat("=", rule))
	c.println("1. List Users")
	for i, event := range c.Events {
		c.printf("%d. %s\n", i+2, event)
	}
	c.printf("%d. Register New User\n", c.exitChoice()-2)
	c.printf("%d. View Attendance Records\n", c.exitChoice()-1)
	c.printf("%d. Exit\n", c.exitChoice())
	c.println(strings.Repeat("-", rule))
}

func (c *Console) listUsers() {
	c.title("=== Registered Users ===")
	users := c.Roster.List()
	if len(users) == 0 {
		c.println("No users registered.")
		return
	}
	for _, u := range users {
		c.printf("ID: %s | Name: %s\n", u.ID, u.DisplayName)
	}
}

// runEvent opens the session, which starts the listener, and blocks until
// the operator presses Enter.
func (c *Console) runEvent(ctx context.Context, event string) error {
	if err := c.Session.Open(event); err != nil {
		c.Logger.Error("open event session", "event", event, "err", err)
		c.println(c.warn.Render(fmt.Sprintf("Could not start %s attendance: %v", event, err)))
		return nil
	}

	c.title(fmt.Sprintf("=== %s Attendance Started ===", event))
	if c.ScanURL != nil {
		c.printf("Web server running at: %s\n", c.ScanURL())
	}
	c.println("Scan QR codes using the web interface")
	_, waitErr := c.In.Prompt("Press Enter to stop attendance tracking...")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.ShutdownTimeout)
	defer cancel()
	if _, err := c.Session.Close(stopCtx); err != nil {
		c.Logger.Warn("close event session", "event", event, "err", err)
	}
	c.printf("\n%s attendance tracking stopped.\n", event)

	if waitErr != nil && !errors.Is(waitErr, io.EOF) {
		return waitErr
	}
	return nil
}

func (c *Console) register() error {
	c.title("=== Register New User ===")
	name, err := c.In.Prompt("Enter user name: ")
	if err != nil {
		return ignoreEOF(err)
	}
	id, err := c.In.Prompt("Enter user ID: ")
	if err != nil {
		return ignoreEOF(err)
	}
	name, id = strings.TrimSpace(name), strings.TrimSpace(id)

	p, err := c.Roster.Register(id, name)
	switch {
	case errors.Is(err, roster.ErrDuplicateID):
		c.println(c.warn.Render("User ID already exists!"))
	case errors.Is(err, roster.ErrEmptyID):
		c.println(c.warn.Render("User ID is required!"))
	case err != nil:
		c.Logger.Error("register user", "user_id", id, "err", err)
		c.println(c.warn.Render(fmt.Sprintf("Could not save user: %v", err)))
	default:
		c.println(c.ok.Render(fmt.Sprintf("User %s registered successfully!", p.DisplayName)))
		c.printf("QR code data: %s (token %s)\n", p.ID, p.ScanToken)
	}
	return nil
}

func (c *Console) viewRecords() error {
	c.title("=== View Attendance Records ===")
	for i, event := range c.Events {
		c.printf("%d. %s\n", i+1, event)
	}
	all := len(c.Events) + 1
	back := len(c.Events) + 2
	c.printf("%d. All Records\n", all)
	c.printf("%d. Back to Main Menu\n", back)

	choice, err := c.In.Prompt(fmt.Sprintf("Enter your choice (1-%d): ", back))
	if err != nil {
		return ignoreEOF(err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(choice))
	switch {
	case err != nil || n < 1 || n > back:
		c.println(c.warn.Render("Invalid choice!"))
	case n <= len(c.Events):
		event := c.Events[n-1]
		c.title(fmt.Sprintf("=== %s Attendance Records ===", event))
		c.showRecords(c.Records.ReadEvent(event))
	case n == all:
		c.title("=== All Attendance Records ===")
		c.showRecords(c.Records.ReadAll())
	}
	return nil
}

func (c *Console) showRecords(content string, err error) {
	switch {
	case errors.Is(err, attendance.ErrNoRecords):
		c.println("No attendance records found.")
	case err != nil:
		c.println(c.warn.Render(fmt.Sprintf("Could not read records: %v", err)))
	default:
		c.printf("%s", content)
	}
}

func (c *Console) title(s string) {
	c.println("")
	c.println(c.heading.Render(s))
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.Out, s)
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
