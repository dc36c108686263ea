package models

// User is the authenticated account attached to the auth state.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// AuthState is the single logical auth record. The background context is the
// sole writer; page contexts receive read-only mirrors via broadcast.
type AuthState struct {
	AccessToken     string `json:"accessToken,omitempty"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	User            *User  `json:"user,omitempty"`
	TrackingEnabled bool   `json:"trackingEnabled"`
}

// LoggedIn reports whether the state carries a usable access token.
func (s AuthState) LoggedIn() bool {
	return s.AccessToken != ""
}

// AuthStatePatch is a partial update merged into the stored AuthState.
// Nil fields are left untouched.
type AuthStatePatch struct {
	AccessToken     *string `json:"accessToken,omitempty"`
	RefreshToken    *string `json:"refreshToken,omitempty"`
	User            *User   `json:"user,omitempty"`
	TrackingEnabled *bool   `json:"trackingEnabled,omitempty"`
}

// TokenPair is what the auth endpoints hand back.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair plus the user profile.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// RefreshRequest is the body of POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
