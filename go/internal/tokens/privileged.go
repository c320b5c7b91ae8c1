package tokens

// Privileged guards host-only actions with one static shared secret.
type Privileged struct {
	secret string
}

// NewPrivileged wraps the configured host secret.
func NewPrivileged(secret string) Privileged {
	return Privileged{secret: secret}
}

// Allow reports whether presented matches the host secret. An unset secret
// authorizes nothing.
func (p Privileged) Allow(presented string) bool {
	return Equal(p.secret, presented)
}
