package profile

import "strings"

// User is the signed-in user as known to the identity provider.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
}

// FullName joins the first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// AuthState is the authentication state the page is rendered under.
type AuthState struct {
	Loaded   bool
	SignedIn bool
	User     *User
}

// SignedInAs returns a loaded, signed-in state for user.
func SignedInAs(user User) AuthState {
	return AuthState{Loaded: true, SignedIn: true, User: &user}
}

// SignedOut returns a loaded, signed-out state.
func SignedOut() AuthState {
	return AuthState{Loaded: true}
}

func (a AuthState) canFetch() bool {
	return a.Loaded && a.SignedIn
}

func (a AuthState) userID() string {
	if a.User == nil {
		return ""
	}
	return a.User.ID
}
