// Package security aggregates authentication failures into threshold alerts.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "biblioteca:alerts"

	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Rule fires once Threshold matching events from one address land in the
// same Window.
type Rule struct {
	Threshold int64
	Window    time.Duration
}

// AlertResult reports the counter after an observation.
type AlertResult struct {
	Triggered bool
	Count     int64
	Rule      Rule
}

// Alerter counts security events per event, outcome and client address in
// shared Redis windows.
type Alerter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewAlerter(client *redis.Client, prefix string) (*Alerter, error) {
	if client == nil {
		return nil, errors.New("alerter requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Alerter{client: client, prefix: prefix, now: time.Now}, nil
}

// Observe records one event. Events without a rule are ignored. A nil
// Alerter observes nothing.
func (a *Alerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	rule, ok := ruleFor(event, outcome)
	if !ok {
		return AlertResult{}, nil
	}
	windowMs := rule.Window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, fmt.Errorf("observe %s: %w", event, err)
	}
	// Only the crossing observation triggers, so a burst alerts once.
	return AlertResult{Triggered: count == rule.Threshold, Count: count, Rule: rule}, nil
}

func ruleFor(event, outcome string) (Rule, bool) {
	switch strings.TrimSpace(outcome) {
	case OutcomeRateLimited:
		return Rule{Threshold: 20, Window: time.Minute}, true
	case OutcomeFail:
	default:
		return Rule{}, false
	}
	switch strings.TrimSpace(event) {
	case "auth.login", "auth.register":
		return Rule{Threshold: 10, Window: 5 * time.Minute}, true
	case "auth.refresh", "auth.google", "auth.logout":
		return Rule{Threshold: 15, Window: 5 * time.Minute}, true
	case "api.authorize":
		return Rule{Threshold: 25, Window: 5 * time.Minute}, true
	default:
		return Rule{}, false
	}
}

var segmentReplacer = strings.NewReplacer(":", "_", "|", "_", " ", "_")

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return segmentReplacer.Replace(in)
}
