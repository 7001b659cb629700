package guard

import (
	"sync"
	"time"
)

// Action identifica el tipo de operacion limitada.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
	// ActionVerificationResend no tiene politica registrada; se limita con AllowPolicy.
	ActionVerificationResend Action = "verification_resend"
)

const defaultIdleTTL = time.Hour

// Policy define ventana, umbral y bloqueo de una accion.
// Con Lockout == 0 el rechazo no bloquea: Retry-After es lo que queda de ventana.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
	Lockout     time.Duration
}

// DefaultPolicies son las politicas de registro y login.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionRegister: {Window: 15 * time.Minute, MaxAttempts: 3, Lockout: 60 * time.Minute},
		ActionLogin:    {Window: 15 * time.Minute, MaxAttempts: 5, Lockout: 30 * time.Minute},
	}
}

// DefaultResendPolicy limita los reenvios de verificacion. No bloquea.
func DefaultResendPolicy() Policy {
	return Policy{Window: 15 * time.Minute, MaxAttempts: 3}
}

// Entry es el estado por (accion, cliente). Vive solo en memoria del proceso.
type Entry struct {
	Attempts     int
	LastAttempt  time.Time
	BlockedUntil *time.Time
}

func (e Entry) blockedAt(now time.Time) bool {
	return e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}

// Decision es el resultado de un intento.
type Decision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

// RetryAfterSeconds redondea hacia arriba para no invitar a reintentar antes de tiempo.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Stats resume el estado de la tabla.
type Stats struct {
	TrackedKeys int `json:"tracked_keys"`
	BlockedKeys int `json:"blocked_keys"`
}

type limitKey struct {
	action Action
	client string
}

// RateLimiter es un limitador de ventana deslizante con bloqueo escalonado.
// Es propiedad de quien lo construye; los barridos los invoca el host.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[limitKey]*Entry
	policies map[Action]Policy
	idleTTL  time.Duration
	now      func() time.Time
	metrics  *Metrics
}

type RateLimiterOption func(*RateLimiter)

func WithPolicy(action Action, p Policy) RateLimiterOption {
	return func(l *RateLimiter) {
		if p.Window > 0 && p.MaxAttempts > 0 {
			l.policies[action] = p
		}
	}
}

func WithClock(now func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithIdleTTL(ttl time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if ttl > 0 {
			l.idleTTL = ttl
		}
	}
}

func WithMetrics(m *Metrics) RateLimiterOption {
	return func(l *RateLimiter) {
		l.metrics = m
	}
}

func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		entries:  make(map[limitKey]*Entry),
		policies: DefaultPolicies(),
		idleTTL:  defaultIdleTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow aplica la politica registrada para action. Una accion sin politica siempre pasa.
func (l *RateLimiter) Allow(action Action, clientID string) Decision {
	l.mu.Lock()
	p, ok := l.policies[action]
	l.mu.Unlock()
	if !ok {
		return Decision{Allowed: true}
	}
	return l.AllowPolicy(action, clientID, p)
}

// AllowPolicy aplica una politica suministrada por el llamador.
func (l *RateLimiter) AllowPolicy(action Action, clientID string, p Policy) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := limitKey{action: action, client: clientID}
	e, ok := l.entries[k]
	if !ok {
		l.entries[k] = &Entry{Attempts: 1, LastAttempt: now}
		return l.record(action, Decision{Allowed: true, Attempts: 1})
	}

	if e.blockedAt(now) {
		return l.record(action, Decision{Attempts: e.Attempts, RetryAfter: e.BlockedUntil.Sub(now)})
	}

	if now.Sub(e.LastAttempt) > p.Window {
		e.Attempts = 1
		e.LastAttempt = now
		e.BlockedUntil = nil
		return l.record(action, Decision{Allowed: true, Attempts: 1})
	}

	e.Attempts++
	if e.Attempts > p.MaxAttempts {
		if p.Lockout > 0 {
			until := now.Add(p.Lockout)
			e.BlockedUntil = &until
			e.LastAttempt = now
			l.metrics.lockout(action)
			return l.record(action, Decision{Attempts: e.Attempts, RetryAfter: p.Lockout})
		}
		return l.record(action, Decision{Attempts: e.Attempts, RetryAfter: p.Window - now.Sub(e.LastAttempt)})
	}
	e.LastAttempt = now
	return l.record(action, Decision{Allowed: true, Attempts: e.Attempts})
}

func (l *RateLimiter) record(action Action, d Decision) Decision {
	l.metrics.decision(action, d.Allowed)
	return d
}

// Reset elimina el registro de una clave. Devuelve false si no existia.
func (l *RateLimiter) Reset(action Action, clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := limitKey{action: action, client: clientID}
	if _, ok := l.entries[k]; !ok {
		return false
	}
	delete(l.entries, k)
	return true
}

// Lookup devuelve una copia del registro de una clave.
func (l *RateLimiter) Lookup(action Action, clientID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[limitKey{action: action, client: clientID}]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	if e.BlockedUntil != nil {
		until := *e.BlockedUntil
		cp.BlockedUntil = &until
	}
	return cp, true
}

func (l *RateLimiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	st := Stats{TrackedKeys: len(l.entries)}
	for _, e := range l.entries {
		if e.blockedAt(now) {
			st.BlockedKeys++
		}
	}
	return st
}

// Sweep descarta registros inactivos mas alla de idleTTL que no esten bloqueados.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	blocked := 0
	for k, e := range l.entries {
		if e.blockedAt(now) {
			blocked++
			continue
		}
		if now.Sub(e.LastAttempt) > l.idleTTL {
			delete(l.entries, k)
			removed++
		}
	}
	l.metrics.table(len(l.entries), blocked)
	return removed
}
