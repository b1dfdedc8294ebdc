package supervision

// Well-known names under which Stage registers the two bootstrap
// supervisors in its supervisor registry, resolved the same way a
// user-registered named supervisor is.
const (
	PrivateRootName = "__privateRoot"
	PublicRootName  = "__publicRoot"
)

// NewPrivateRoot builds the supervisor for system-critical actors: any
// failure stops the actor rather than risking a silent restart loop in
// infrastructure the runtime itself depends on.
func NewPrivateRoot() Supervisor {
	return Always(Stop, 0, 0, One)
}

// NewPublicRoot builds the default supervisor every ordinary actor gets
// when it declares no supervisor name of its own: restart unconditionally,
// with no intensity ceiling, since a sensible per-type policy is the
// application's job, not the platform's default.
func NewPublicRoot() Supervisor {
	return NewStrategy(Unlimited, Forever, One, func(error) Directive { return Restart })
}
