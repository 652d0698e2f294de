package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"waf-sentinel/internal/schema"
)

// campaignNamespace seeds deterministic campaign IDs: the same
// (organization, source IP, window start) always hashes to the same
// identifier, so repeated queries about one campaign stay stable.
var campaignNamespace = uuid.MustParse("8f9e6b54-1f2a-4c83-9d7e-40b6a3f0c911")

// Milestones are the event counts at which an active campaign
// re-alerts, balancing visibility against alert fatigue.
var Milestones = []int64{25, 50, 100, 250, 500, 1000}

// Params are the per-organization detection knobs.
type Params struct {
	Threshold int           // events within the window that declare a campaign
	Window    time.Duration // counting window per source IP
}

// Detection is the outcome of one Detect call.
type Detection struct {
	IsCampaign    bool
	IsNewCampaign bool
	CampaignID    string
	EventCount    int64
	AttackTypes   []schema.ThreatType
	Severity      schema.Severity
	ShouldAlert   bool
}

// Detector tracks per-IP event bursts and declares campaigns. All
// mutable state lives in the injected StateStore; the detector itself
// holds none.
type Detector struct {
	store  StateStore
	logger *slog.Logger
	maxAge time.Duration
	now    func() time.Time
}

// NewDetector creates a Detector over the given store. maxAge bounds
// how long idle state is retained.
func NewDetector(store StateStore, maxAge time.Duration, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Detector{
		store:  store,
		logger: logger,
		maxAge: maxAge,
		now:    time.Now,
	}
}

func stateKey(orgID, sourceIP string) string {
	return orgID + ":" + sourceIP
}

// CampaignID derives the deterministic identifier for a campaign.
func CampaignID(orgID, sourceIP string, windowStart time.Time) string {
	name := fmt.Sprintf("%s|%s|%d", orgID, sourceIP, windowStart.Unix())
	return uuid.NewSHA1(campaignNamespace, []byte(name)).String()
}

// Detect records one classified event for (orgID, sourceIP) and
// reports whether the burst constitutes a campaign. Store failures are
// returned to the caller: undercounting campaigns is a
// security-relevant failure and must not be silent.
func (d *Detector) Detect(ctx context.Context, orgID, sourceIP string, threatType schema.ThreatType, severity schema.Severity, params Params) (Detection, error) {
	if params.Threshold <= 0 || params.Window <= 0 {
		return Detection{}, fmt.Errorf("invalid campaign params: threshold=%d window=%v", params.Threshold, params.Window)
	}

	key := stateKey(orgID, sourceIP)

	count, windowStart, err := d.store.Increment(ctx, key, params.Window)
	if err != nil {
		return Detection{}, err
	}

	// Concurrent detections for the same source merge inside the store,
	// so a stale writer cannot regress severity or re-fire the
	// new-campaign transition.
	delta := &State{
		OrganizationID: orgID,
		SourceIP:       sourceIP,
		EventCount:     count,
		FirstSeen:      windowStart,
		LastSeen:       d.now(),
		AttackTypes:    []schema.ThreatType{threatType},
		Severity:       severity,
		IsCampaign:     count >= int64(params.Threshold),
	}
	if delta.IsCampaign {
		delta.CampaignID = CampaignID(orgID, sourceIP, windowStart)
	}

	state, isNew, err := d.store.MergeState(ctx, key, delta, d.maxAge)
	if err != nil {
		return Detection{}, err
	}

	if isNew {
		d.logger.Info("attack campaign detected",
			"organization_id", orgID,
			"source_ip", sourceIP,
			"campaign_id", state.CampaignID,
			"event_count", count,
			"threshold", params.Threshold,
			"threat_type", threatType,
			"severity", state.Severity,
		)
	}

	return Detection{
		IsCampaign:    state.IsCampaign,
		IsNewCampaign: isNew,
		CampaignID:    state.CampaignID,
		EventCount:    count,
		AttackTypes:   append([]schema.ThreatType(nil), state.AttackTypes...),
		Severity:      state.Severity,
		ShouldAlert:   isNew || (state.IsCampaign && isMilestone(count)),
	}, nil
}

// Resolve clears the campaign flag for (orgID, sourceIP) without
// deleting the state, so a later burst restarts detection cleanly.
func (d *Detector) Resolve(ctx context.Context, orgID, sourceIP string) error {
	key := stateKey(orgID, sourceIP)

	state, err := d.store.GetState(ctx, key)
	if err != nil {
		return err
	}
	if state == nil || !state.IsCampaign {
		return nil
	}

	state.IsCampaign = false
	if err := d.store.PutState(ctx, key, state, d.maxAge); err != nil {
		return err
	}

	d.logger.Info("campaign resolved",
		"organization_id", orgID,
		"source_ip", sourceIP,
		"campaign_id", state.CampaignID,
	)
	return nil
}

// Sweep re-evaluates an organization's campaign state: campaigns idle
// longer than the window are resolved, and entries idle longer than
// the retention age are removed. It returns the resolved and removed
// counts.
func (d *Detector) Sweep(ctx context.Context, orgID string, window time.Duration) (resolved, removed int, err error) {
	states, err := d.store.ListStates(ctx, orgID+":")
	if err != nil {
		return 0, 0, err
	}

	now := d.now()
	var stale []string

	for key, state := range states {
		if now.Sub(state.LastSeen) > d.maxAge {
			stale = append(stale, key)
			continue
		}
		if state.IsCampaign && now.Sub(state.LastSeen) > window {
			state.IsCampaign = false
			if perr := d.store.PutState(ctx, key, state, d.maxAge); perr != nil {
				return resolved, removed, perr
			}
			resolved++
		}
	}

	if len(stale) > 0 {
		if derr := d.store.DeleteStates(ctx, stale...); derr != nil {
			return resolved, removed, derr
		}
		removed = len(stale)
	}

	if resolved > 0 || removed > 0 {
		d.logger.Info("campaign state swept",
			"organization_id", orgID,
			"resolved", resolved,
			"removed", removed,
		)
	}

	return resolved, removed, nil
}

// SweepAll runs the sweep across every organization with state,
// using one idle window for all of them. The periodic service sweep
// uses this; per-organization invocations go through Sweep with the
// organization's configured window.
func (d *Detector) SweepAll(ctx context.Context, window time.Duration) (resolved, removed int, err error) {
	states, err := d.store.ListStates(ctx, "")
	if err != nil {
		return 0, 0, err
	}

	now := d.now()
	var stale []string

	for key, state := range states {
		if now.Sub(state.LastSeen) > d.maxAge {
			stale = append(stale, key)
			continue
		}
		if state.IsCampaign && now.Sub(state.LastSeen) > window {
			state.IsCampaign = false
			if perr := d.store.PutState(ctx, key, state, d.maxAge); perr != nil {
				return resolved, removed, perr
			}
			resolved++
		}
	}

	if len(stale) > 0 {
		if derr := d.store.DeleteStates(ctx, stale...); derr != nil {
			return resolved, removed, derr
		}
		removed = len(stale)
	}

	return resolved, removed, nil
}

// Cleanup removes state entries across all organizations whose
// lastSeen is older than maxAge. Run periodically, independent of
// detection calls.
func (d *Detector) Cleanup(ctx context.Context) (int, error) {
	states, err := d.store.ListStates(ctx, "")
	if err != nil {
		return 0, err
	}

	now := d.now()
	var stale []string
	for key, state := range states {
		if now.Sub(state.LastSeen) > d.maxAge {
			stale = append(stale, key)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := d.store.DeleteStates(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func appendThreatType(types []schema.ThreatType, t schema.ThreatType) []schema.ThreatType {
	for _, existing := range types {
		if existing == t {
			return types
		}
	}
	return append(types, t)
}

func isMilestone(count int64) bool {
	for _, m := range Milestones {
		if count == m {
			return true
		}
	}
	return false
}
