package session

import (
	"errors"
	"fmt"
)

// Page is the navigation state of a session.
type Page int

const (
	LoggedOut Page = iota
	Home
	About
	Services
	AddPatient
)

var pageNames = map[Page]string{
	LoggedOut:  "login",
	Home:       "home",
	About:      "about",
	Services:   "services",
	AddPatient: "add-patient",
}

func (p Page) String() string {
	if s, ok := pageNames[p]; ok {
		return s
	}
	return fmt.Sprintf("page(%d)", int(p))
}

// ParsePage is the inverse of Page.String.
func ParsePage(s string) (Page, error) {
	for p, name := range pageNames {
		if name == s {
			return p, nil
		}
	}
	return LoggedOut, fmt.Errorf("unknown page %q", s)
}

// MenuPages are the navigation destinations shown once logged in, in menu order.
var MenuPages = []Page{Home, About, Services, AddPatient}

// ErrNotLoggedIn is returned when a logged-out session tries to navigate.
var ErrNotLoggedIn = errors.New("not logged in")

// Session is the per-user interaction state. It is a value: transitions
// return the next state instead of mutating shared globals.
type Session struct {
	ID   string
	User string
	Page Page
}

// LoggedIn reports whether the session is past the login screen.
func (s Session) LoggedIn() bool { return s.Page != LoggedOut }

// Login moves a session to Home for user.
func (s Session) Login(user string) Session {
	return Session{ID: s.ID, User: user, Page: Home}
}

// Navigate moves a logged-in session to one of the menu pages.
func (s Session) Navigate(p Page) (Session, error) {
	if !s.LoggedIn() {
		return s, ErrNotLoggedIn
	}
	if p == LoggedOut {
		return s, fmt.Errorf("cannot navigate to %s; use Logout", p)
	}
	if _, ok := pageNames[p]; !ok {
		return s, fmt.Errorf("unknown page %d", int(p))
	}
	s.Page = p
	return s, nil
}

// Logout always returns to the login screen.
func (s Session) Logout() Session {
	return Session{ID: s.ID, Page: LoggedOut}
}
