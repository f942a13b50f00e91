package connector

// Credentials supplies the account used for the legacy password handshake.
type Credentials interface {
	Username() string
	Password() string
}

// StaticCredentials is a fixed username and password.
type StaticCredentials struct {
	user string
	pass string
}

// NewStaticCredentials creates credentials from configuration values.
func NewStaticCredentials(user, pass string) StaticCredentials {
	return StaticCredentials{user: user, pass: pass}
}

// Username returns the player name.
func (c StaticCredentials) Username() string { return c.user }

// Password returns the password.
func (c StaticCredentials) Password() string { return c.pass }
