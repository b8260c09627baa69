package gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/sonar"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Sonar-Webhook-HMAC-SHA256"

// WebhookPath is where the listener expects deliveries
const WebhookPath = "/sonar/webhook"

// maxPayload bounds the size of a delivery body
const maxPayload = 1 << 20

// Deliveries nobody waits for yet are kept at most this long, and at most this many
const (
	DefaultRetention   = 30 * time.Minute
	DefaultMaxRetained = 100
)

// Payload is the body SonarQube posts to a webhook once a task is processed
type Payload struct {
	TaskID     string `json:"taskId"`
	Status     string `json:"status"`
	AnalysedAt string `json:"analysedAt"`
	Revision   string `json:"revision"`
	Project    struct {
		Key  string `json:"key"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"project"`
	QualityGate struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		Conditions []struct {
			Metric         string `json:"metric"`
			Operator       string `json:"operator"`
			Value          string `json:"value"`
			Status         string `json:"status"`
			ErrorThreshold string `json:"errorThreshold"`
		} `json:"conditions"`
	} `json:"qualityGate"`
}

// Verdict of the payload
func (p Payload) Verdict() Verdict {
	v := Verdict{
		TaskID: p.TaskID,
		Status: p.QualityGate.Status,
	}
	if v.Status == "" {
		v.Status = sonar.GateNone
	}
	for _, c := range p.QualityGate.Conditions {
		v.Conditions = append(v.Conditions, sonar.Condition{
			Status:         c.Status,
			MetricKey:      c.Metric,
			Comparator:     c.Operator,
			ErrorThreshold: c.ErrorThreshold,
			ActualValue:    c.Value,
		})
	}
	return v
}

type delivery struct {
	verdict  Verdict
	err      error
	received time.Time
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithRetention keeps up to max unawaited deliveries for ttl. A zero max keeps none,
// deliveries are then only logged.
func WithRetention(ttl time.Duration, max int) ListenerOption {
	return func(l *Listener) {
		l.retention = ttl
		l.maxRetained = max
	}
}

// Listener receives webhook deliveries and hands them to waiters by task id
type Listener struct {
	secret  string
	project string
	logger  zerolog.Logger

	retention   time.Duration
	maxRetained int
	now         func() time.Time

	mu         sync.Mutex
	deliveries map[string]delivery
	waiters    map[string][]chan delivery

	router *mux.Router
	srv    *http.Server
	ln     net.Listener
}

// NewListener creates a listener, deliveries for other projects than project are rejected
// unless project is empty. An empty secret disables signature checks.
func NewListener(project, secret string, logger zerolog.Logger, opts ...ListenerOption) *Listener {
	l := &Listener{
		secret:      secret,
		project:     project,
		logger:      logger,
		retention:   DefaultRetention,
		maxRetained: DefaultMaxRetained,
		now:         time.Now,
		deliveries:  make(map[string]delivery),
		waiters:     make(map[string][]chan delivery),
	}
	for _, opt := range opts {
		opt(l)
	}

	r := mux.NewRouter()
	r.HandleFunc(WebhookPath, wrapFunc(l.webhookHandler)).Methods(http.MethodPost)
	l.router = r

	return l
}

// Handler of the listener
func (l *Listener) Handler() http.Handler {
	return l.router
}

// Start listens on addr and serves deliveries in the background
func (l *Listener) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "couldn't listen on %s", addr)
	}

	l.ln = ln
	l.srv = &http.Server{
		Handler:           l.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error().Err(err).Msg("webhook server error")
		}
		l.logger.Debug().Msg("stopped serving webhook deliveries")
	}()

	l.logger.Info().Str("address", ln.Addr().String()).Str("path", WebhookPath).Msg("webhook listener started")
	return nil
}

// Addr the listener is bound to, empty before Start
func (l *Listener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Shutdown stops the http server gracefully
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	return l.srv.Shutdown(ctx)
}

// Await implements Source, deliveries that arrived before the call are kept
func (l *Listener) Await(ctx context.Context, taskID string) (Verdict, error) {
	l.mu.Lock()
	l.expire()
	if d, ok := l.deliveries[taskID]; ok {
		delete(l.deliveries, taskID)
		l.mu.Unlock()
		return d.verdict, d.err
	}

	ch := make(chan delivery, 1)
	l.waiters[taskID] = append(l.waiters[taskID], ch)
	l.mu.Unlock()

	select {
	case d := <-ch:
		return d.verdict, d.err
	case <-ctx.Done():
		l.removeWaiter(taskID, ch)
		return Verdict{}, ctx.Err()
	}
}

func (l *Listener) removeWaiter(taskID string, ch chan delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	waiters := l.waiters[taskID]
	for i, w := range waiters {
		if w == ch {
			l.waiters[taskID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(l.waiters[taskID]) == 0 {
		delete(l.waiters, taskID)
	}
}

func (l *Listener) deliver(taskID string, d delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	waiters, ok := l.waiters[taskID]
	if !ok {
		l.retain(taskID, d)
		return
	}

	delete(l.waiters, taskID)
	for _, ch := range waiters {
		ch <- d
	}
}

// Retained returns the number of deliveries kept for a later Await
func (l *Listener) Retained() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expire()
	return len(l.deliveries)
}

// retain keeps d for a later Await, dropping the oldest delivery when full. l.mu must be held.
func (l *Listener) retain(taskID string, d delivery) {
	if l.maxRetained <= 0 {
		return
	}

	l.expire()

	if _, ok := l.deliveries[taskID]; !ok && len(l.deliveries) >= l.maxRetained {
		oldest := ""
		for id, stored := range l.deliveries {
			if oldest == "" || stored.received.Before(l.deliveries[oldest].received) {
				oldest = id
			}
		}
		delete(l.deliveries, oldest)
		l.logger.Debug().Str("task", oldest).Msg("dropped unawaited webhook delivery")
	}

	d.received = l.now()
	l.deliveries[taskID] = d
}

// expire drops deliveries older than the retention. l.mu must be held.
func (l *Listener) expire() {
	deadline := l.now().Add(-l.retention)
	for id, d := range l.deliveries {
		if d.received.Before(deadline) {
			delete(l.deliveries, id)
		}
	}
}

func (l *Listener) webhookHandler(r *http.Request) (interface{}, response) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		return nil, badRequest(errors.Wrap(err, "couldn't read body"))
	}

	if l.secret != "" && !ValidSignature(l.secret, body, r.Header.Get(SignatureHeader)) {
		l.logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected webhook delivery with a bad signature")
		return nil, unauthorized(errors.New("invalid signature"))
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, badRequest(errors.Wrap(err, "failed to decode webhook payload"))
	}

	if payload.TaskID == "" {
		return nil, badRequest(errors.New("taskId is required"))
	}

	if l.project != "" && payload.Project.Key != l.project {
		return nil, badRequest(errors.Errorf("unexpected project %q", payload.Project.Key))
	}

	d := delivery{verdict: payload.Verdict()}
	if payload.Status != sonar.TaskSuccess {
		d.err = errors.Wrapf(ErrAnalysisFailed, "task %s is %s", payload.TaskID, payload.Status)
	}

	l.logger.Info().
		Str("task", payload.TaskID).
		Str("project", payload.Project.Key).
		Str("gate", d.verdict.Status).
		Msg("webhook delivery received")

	l.deliver(payload.TaskID, d)

	return struct {
		TaskID string `json:"taskId"`
	}{payload.TaskID}, nil
}

// ValidSignature checks the hex encoded HMAC-SHA256 of body under secret
func ValidSignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign returns the signature a server sharing secret puts on body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
