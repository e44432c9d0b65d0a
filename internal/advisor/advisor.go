// Package advisor produces short hiring recommendations from a
// contractor's permit history using the Anthropic Messages API.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/resilience"
	"github.com/sells-group/permitcheck/internal/search"
	"github.com/sells-group/permitcheck/pkg/anthropic"
)

const (
	// MaxPermits caps the permits sent in one prompt.
	MaxPermits = 25
	// MaxDescriptionLen caps each permit description, in runes.
	MaxDescriptionLen = 200

	// Consecutive upstream failures before lookups stop asking for advice.
	breakerThreshold = 3
	breakerCooldown  = time.Minute
)

const systemPrompt = `You are a financial and civil advisor for homeowners. ` +
	`You are given a contractor's past projects and licensing history as JSON. ` +
	`Give a short recommendation, under 100 words, on whether or not to hire this contractor. ` +
	`Judge on experience and the diversity of their skill set. ` +
	`Many permits at different addresses in a short period may mean the contractor is over-committed, which is a high risk.`

// Config tunes the generated request.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Advisor implements search.Advisor.
type Advisor struct {
	client  anthropic.Client
	cfg     Config
	breaker *resilience.Breaker
	log     *zap.Logger
}

var _ search.Advisor = (*Advisor)(nil)

// New returns an Advisor calling client.
func New(client anthropic.Client, cfg Config) *Advisor {
	a := &Advisor{
		client: client,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "advisor")),
	}
	a.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		Threshold:  breakerThreshold,
		Cooldown:   breakerCooldown,
		ShouldTrip: shouldTrip,
		OnStateChange: func(from, to resilience.State) {
			a.log.Warn("advisor circuit changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return a
}

// shouldTrip counts upstream outages, not rejected requests.
func shouldTrip(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if code := anthropic.StatusCode(err); code != 0 {
		return resilience.IsTransientHTTPStatus(code)
	}
	return errors.Is(err, context.DeadlineExceeded) || resilience.IsTransient(err)
}

type permitSummary struct {
	PermitID    *string  `json:"permit_id,omitempty"`
	DateStarted *string  `json:"date_started,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Description *string  `json:"description,omitempty"`
	Street      *string  `json:"street,omitempty"`
	City        *string  `json:"city,omitempty"`
}

type payload struct {
	Name         string          `json:"name"`
	Company      *string         `json:"company,omitempty"`
	LicenseID    string          `json:"license_id"`
	Status       *string         `json:"license_status,omitempty"`
	ExpireDate   *string         `json:"license_expires,omitempty"`
	TotalPermits int             `json:"total_permits"`
	TotalAmount  *float64        `json:"total_amount,omitempty"`
	Permits      []permitSummary `json:"permits"`
}

// buildPayload renders the bounded JSON history. Permits are assumed to be
// ordered most recent first.
func buildPayload(in search.AdviceInput) ([]byte, error) {
	p := payload{
		Name:         in.Contractor.Name,
		Company:      in.Contractor.Company,
		LicenseID:    in.Contractor.LicenseID,
		Status:       in.Contractor.Status,
		ExpireDate:   in.Contractor.ExpireDate,
		TotalPermits: len(in.Permits),
		TotalAmount:  in.TotalAmount,
		Permits:      make([]permitSummary, 0, min(len(in.Permits), MaxPermits)),
	}
	for i, r := range in.Permits {
		if i == MaxPermits {
			break
		}
		p.Permits = append(p.Permits, summarize(r))
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: marshal payload")
	}
	return b, nil
}

func summarize(r model.PermitRecord) permitSummary {
	s := permitSummary{
		PermitID:    r.PermitID,
		DateStarted: r.DateStarted,
		Amount:      r.Amount,
		Status:      r.Status,
		Description: normalize.TruncatePtr(r.Description, MaxDescriptionLen),
	}
	if r.Address != nil {
		s.Street = joinStreet(r.Address.StreetNumber, r.Address.StreetName)
		s.City = r.Address.City
	}
	return s
}

func joinStreet(number, name *string) *string {
	switch {
	case number != nil && name != nil:
		v := *number + " " + *name
		return &v
	case name != nil:
		return name
	}
	return nil
}

// Advise returns the model's recommendation for in.
func (a *Advisor) Advise(ctx context.Context, in search.AdviceInput) (string, error) {
	body, err := buildPayload(in)
	if err != nil {
		return "", err
	}

	temp := a.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt, ""),
		Messages:    []anthropic.Message{{Role: "user", Content: string(body)}},
		Temperature: &temp,
	}
	resp, err := resilience.Call(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, resilience.ErrOpen) {
			outcome = "breaker_open"
		}
		metrics.AdviceRequests.WithLabelValues(outcome).Inc()
		return "", eris.Wrap(err, "advisor: create message")
	}
	resp.Usage.LogCost(a.cfg.Model, "advice")
	metrics.AdviceCostUSD.Add(resp.Usage.EstimateCost(a.cfg.Model))

	text := resp.Text()
	if text == "" {
		metrics.AdviceRequests.WithLabelValues("empty").Inc()
		return "", eris.New("advisor: empty response")
	}
	metrics.AdviceRequests.WithLabelValues("ok").Inc()
	a.log.Debug("advice generated",
		zap.String("license_id", in.Contractor.LicenseID),
		zap.Int("permits", len(in.Permits)),
	)
	return text, nil
}
