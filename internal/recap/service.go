package recap

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/domainmap"
	"github.com/sells-group/accountsync/internal/matcher"
	"github.com/sells-group/accountsync/internal/model"
	"github.com/sells-group/accountsync/internal/store"
)

// Ingestion actions reported back to the webhook caller.
const (
	ActionCreated = "created"
	ActionSkipped = "skipped"
)

// Result is the outcome of one inbound recap delivery.
type Result struct {
	Action  string `json:"action"`
	RecapID string `json:"meetingRecapId"`
}

// Service turns webhook payloads into stored recaps with resolved accounts.
type Service struct {
	store  store.Store
	mapper *domainmap.Mapper
	now    func() time.Time
}

// NewService builds an ingestion Service. The mapper may be nil if no domain
// dictionary is loaded; recaps are then stored without an account.
func NewService(st store.Store, mapper *domainmap.Mapper) *Service {
	return &Service{store: st, mapper: mapper, now: time.Now}
}

// Ingest processes one delivery: duplicate-check by recap id, then store the
// flattened recap and its action items. Duplicates are skipped, never an
// error. After a successful store the matcher is kicked as a best-effort
// follow-up; its failure is logged, not propagated.
func (s *Service) Ingest(ctx context.Context, p Payload) (*Result, error) {
	recapID, err := ParseRecapID(p.MeetingInfo.MeetingLink)
	if err != nil {
		return nil, err
	}

	recap := s.flatten(recapID, p)
	items := flattenActionItems(recapID, p.ActionItems)

	inserted, err := s.store.InsertRecap(ctx, recap, items)
	if err != nil {
		return nil, eris.Wrapf(err, "recap: store %s", recapID)
	}
	if !inserted {
		zap.L().Info("recap: duplicate delivery skipped", zap.String("recap_id", recapID))
		return &Result{Action: ActionSkipped, RecapID: recapID}, nil
	}

	zap.L().Info("recap: stored",
		zap.String("recap_id", recapID),
		zap.String("account_id", recap.AccountID),
		zap.Int("action_items", len(items)),
	)

	s.rematch(ctx)

	return &Result{Action: ActionCreated, RecapID: recapID}, nil
}

// flatten maps the nested payload onto the entity row. Account resolution
// tries actual attendees before invited ones; the internal domain never
// resolves.
func (s *Service) flatten(recapID string, p Payload) model.MeetingRecap {
	recap := model.MeetingRecap{
		RecapID:          recapID,
		Title:            p.MeetingInfo.Title,
		Start:            p.MeetingInfo.StartTime,
		End:              p.MeetingInfo.EndTime,
		ActualAttendees:  p.Attendees.Actual,
		InvitedAttendees: p.Attendees.Invited,
		Summary:          p.Summary,
		ReceivedAt:       s.now().UTC(),
	}
	if s.mapper != nil {
		fields := append(append([]string{}, p.Attendees.Actual...), p.Attendees.Invited...)
		recap.AccountID = s.mapper.ResolveAccountID("recap", recapID, fields...)
	}
	return recap
}

func flattenActionItems(recapID string, items PayloadActionItems) []model.ActionItem {
	var out []model.ActionItem
	for _, group := range [][]PayloadActionItem{items.MyItems, items.OthersItems} {
		for _, item := range group {
			out = append(out, model.ActionItem{
				RecapID:     recapID,
				Index:       len(out),
				Title:       item.Title,
				Description: item.Description,
				Priority:    item.Priority,
			})
		}
	}
	return out
}

// rematch reruns the full recap-event matcher. Best-effort: ingestion has
// already committed, so a matcher failure only logs.
func (s *Service) rematch(ctx context.Context) {
	recaps, err := s.store.ListRecaps(ctx)
	if err != nil {
		zap.L().Warn("recap: rematch list recaps", zap.Error(err))
		return
	}
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		zap.L().Warn("recap: rematch list events", zap.Error(err))
		return
	}
	n, err := matcher.Run(ctx, s.store, recaps, events)
	if err != nil {
		zap.L().Warn("recap: rematch", zap.Error(err))
		return
	}
	zap.L().Debug("recap: rematch complete", zap.Int("matches", n))
}
