package httpapi

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/common"
	"github.com/dmitrijs2005/momentkeeper/internal/server/auth"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

// app rejects requests without the application token.
func (s *HTTPServer) app(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CheckAppToken(r.Header.Get(common.AppTokenHeaderName), s.appToken) {
			s.writeError(w, r, api.NewUnauthorized("missing or invalid app token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *models.User)

// user authenticates the caller, applies its rate limit and passes it on.
func (s *HTTPServer) user(h userHandler) http.Handler {
	return s.app(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.users.Authenticate(r.Context(), r.Header.Get(common.UserTokenHeaderName))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if wait, ok := s.limiter.allow(u.ID); !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			s.writeError(w, r, api.NewRateLimitExceeded(secs))
			return
		}
		h(w, r, u)
	}))
}

// userLimiter keeps one token bucket per user. A bucket left alone long
// enough to refill completely is the same as a new one, so such buckets
// are dropped during a periodic scan.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	buckets  map[string]*bucket
	lastScan time.Time
	now      func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// minIdle keeps buckets of fast-refilling limits around for a while.
const minIdle = time.Minute

// newUserLimiter returns a limiter that never blocks when rps <= 0.
func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &userLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    minIdle,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > l.idle {
			l.idle = refill
		}
	}
	return l
}

// allow consumes a token for userID, or reports how long until one is free.
func (l *userLimiter) allow(userID string) (time.Duration, bool) {
	if l.limit <= 0 {
		return 0, true
	}

	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastScan) >= l.idle {
		l.evictIdle(now)
	}
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.seen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// evictIdle must be called with l.mu held.
func (l *userLimiter) evictIdle(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, id)
		}
	}
	l.lastScan = now
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
