package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"reservd/internal/models"
)

// GoogleAdapter fetches events from a Google Calendar. External events carry
// no room or owner, so the adapter maps everything it fetches onto a
// configured room and importing user. Fetches are rate limited.
type GoogleAdapter struct {
	svc        *gcal.Service
	calendarID string
	roomID     int64
	userID     int64
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewGoogleAdapter builds an adapter from service-account credentials.
func NewGoogleAdapter(ctx context.Context, credentialsPath, calendarID string, roomID, userID int64, logger zerolog.Logger) (*GoogleAdapter, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return &GoogleAdapter{
		svc:        svc,
		calendarID: calendarID,
		roomID:     roomID,
		userID:     userID,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		logger:     logger.With().Str("component", "gcal").Logger(),
	}, nil
}

// Fetch lists single events in the window, skipping all-day entries (which
// have no concrete instants to book against).
func (a *GoogleAdapter) Fetch(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	call := a.svc.Events.List(a.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("listing calendar events: %w", err)
	}

	var out []models.CalendarEvent
	for _, item := range resp.Items {
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
			a.logger.Debug().Str("event", item.Id).Msg("skipping all-day or malformed event")
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			a.logger.Warn().Err(err).Str("event", item.Id).Msg("skipping event with bad start")
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			a.logger.Warn().Err(err).Str("event", item.Id).Msg("skipping event with bad end")
			continue
		}
		out = append(out, models.CalendarEvent{
			RoomID:      a.roomID,
			UserID:      a.userID,
			Start:       start.UTC(),
			End:         end.UTC(),
			Title:       item.Summary,
			Description: item.Description,
		})
	}
	return out, nil
}
